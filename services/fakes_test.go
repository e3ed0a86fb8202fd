package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

var testCategories = []models.Category{
	{Key: "social", Label: "Social", Color: "#4f46e5"},
	{Key: "sports", Label: "Sports", Color: "#16a34a"},
}

type fakeAccount struct {
	id        string
	password  string
	confirmed bool
}

type interestCall struct {
	eventID    string
	userID     string
	interested bool
}

// fakeBackend is an in-memory Backend with switchable failures.
type fakeBackend struct {
	mu            sync.Mutex
	accounts      map[string]fakeAccount
	confirmations map[string]string
	sessions      map[string]*AuthSession
	profiles      map[string]*models.Profile
	events        []models.Event
	nextID        int

	createErr        error
	listErr          error
	setInterestErr   error
	updateProfileErr error
	logoutErr        error
	getProfileErr    error

	createCalls   int
	interestCalls []interestCall
	updates       []ProfileUpdate

	// interestHolds parks SetEventInterest for an event until the channel
	// is closed; interestEntered is told when a call is parked.
	interestHolds   map[string]chan struct{}
	interestEntered chan string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts:      make(map[string]fakeAccount),
		confirmations: make(map[string]string),
		sessions:      make(map[string]*AuthSession),
		profiles:      make(map[string]*models.Profile),
	}
}

func (f *fakeBackend) addUser(id, name, email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = fakeAccount{id: id, password: password, confirmed: true}
	f.profiles[id] = &models.Profile{ID: id, Name: name, CreatedEvents: []string{}, InterestedEvents: []string{}}
}

func (f *fakeBackend) addEvent(e models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.InterestedUsers == nil {
		e.InterestedUsers = []string{}
	}
	f.events = append(f.events, e)
}

func (f *fakeBackend) profile(id string) models.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.profiles[id]
}

func (f *fakeBackend) event(id string) models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			return e
		}
	}
	return models.Event{}
}

// holdInterest parks interest writes for eventID until the returned release
// func is called. The returned channel receives eventID once a call parks.
func (f *fakeBackend) holdInterest(eventID string) (entered <-chan string, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.interestHolds == nil {
		f.interestHolds = make(map[string]chan struct{})
	}
	if f.interestEntered == nil {
		f.interestEntered = make(chan string, 4)
	}
	hold := make(chan struct{})
	f.interestHolds[eventID] = hold
	return f.interestEntered, func() { close(hold) }
}

func (f *fakeBackend) setErr(target *error, err error) {
	f.mu.Lock()
	*target = err
	f.mu.Unlock()
}

func (f *fakeBackend) SignUp(_ context.Context, email, password, displayName string) (*SignUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return nil, errors.NewAPIError("USER_EXISTS", "User already exists. Please login instead.", http.StatusConflict)
	}
	f.nextID++
	id := fmt.Sprintf("u%d", f.nextID+100)
	f.accounts[email] = fakeAccount{id: id, password: password}
	f.confirmations["confirm-"+email] = id
	return &SignUpResult{NeedsEmailConfirmation: true, Email: email, Message: confirmationMessage}, nil
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (*AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		return nil, ErrInvalidCredentials
	}
	if !acct.confirmed {
		return nil, ErrEmailNotConfirmed
	}
	return f.openSessionLocked(acct.id, email), nil
}

func (f *fakeBackend) openSessionLocked(userID, email string) *AuthSession {
	sess := &AuthSession{Token: "tok-" + userID, UserID: userID, Email: email, ExpiresAt: time.Now().Add(time.Hour)}
	f.sessions[sess.Token] = sess
	return sess
}

func (f *fakeBackend) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logoutErr != nil {
		return f.logoutErr
	}
	delete(f.sessions, token)
	return nil
}

func (f *fakeBackend) GetSession(_ context.Context, token string) (*AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[token], nil
}

func (f *fakeBackend) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getProfileErr != nil {
		return nil, f.getProfileErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		p = &models.Profile{ID: userID, CreatedEvents: []string{}, InterestedEvents: []string{}}
		f.profiles[userID] = p
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBackend) ConfirmEmail(_ context.Context, confirmToken, pendingName string) (*AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.confirmations[confirmToken]
	if !ok {
		return nil, ErrInvalidConfirm
	}
	delete(f.confirmations, confirmToken)
	var email string
	for e, acct := range f.accounts {
		if acct.id == userID {
			acct.confirmed = true
			f.accounts[e] = acct
			email = e
		}
	}
	if _, exists := f.profiles[userID]; !exists {
		f.profiles[userID] = &models.Profile{ID: userID, Name: pendingName, CreatedEvents: []string{}, InterestedEvents: []string{}}
	}
	return f.openSessionLocked(userID, email), nil
}

func (f *fakeBackend) CreateEvent(_ context.Context, event models.Event) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	event.ID = fmt.Sprintf("ev-%d", f.nextID)
	event.InterestedUsers = []string{}
	event.CreatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.events = append(f.events, event)
	return &event, nil
}

func (f *fakeBackend) ListEvents(context.Context) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Event, 0, len(f.events))
	for _, e := range f.events {
		e.InterestedUsers = append([]string{}, e.InterestedUsers...)
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeBackend) NearbyEvents(ctx context.Context, lat, lng, radiusKm float64) ([]models.Event, error) {
	events, err := f.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Event
	for _, e := range events {
		// roughly 111 km per degree is plenty for tests
		dLat, dLng := (e.Lat-lat)*111, (e.Lng-lng)*111
		if dLat*dLat+dLng*dLng <= radiusKm*radiusKm {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) SetEventInterest(_ context.Context, eventID, userID string, interested bool) error {
	f.mu.Lock()
	hold, entered := f.interestHolds[eventID], f.interestEntered
	f.mu.Unlock()
	if hold != nil {
		entered <- eventID
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.interestCalls = append(f.interestCalls, interestCall{eventID, userID, interested})
	if f.setInterestErr != nil {
		return f.setInterestErr
	}
	for i := range f.events {
		if f.events[i].ID != eventID {
			continue
		}
		if interested {
			f.events[i].InterestedUsers = models.AddID(f.events[i].InterestedUsers, userID)
		} else {
			f.events[i].InterestedUsers = models.RemoveID(f.events[i].InterestedUsers, userID)
		}
		return nil
	}
	return errors.ErrNotFound
}

func (f *fakeBackend) UpdateProfile(_ context.Context, userID string, update ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	if f.updateProfileErr != nil {
		return f.updateProfileErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return errors.ErrNotFound
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	created := models.IDList(p.CreatedEvents)
	for _, id := range update.AddCreated {
		created = models.AddID(created, id)
	}
	for _, id := range update.RemoveCreated {
		created = models.RemoveID(created, id)
	}
	interested := models.IDList(p.InterestedEvents)
	for _, id := range update.AddInterested {
		interested = models.AddID(interested, id)
	}
	for _, id := range update.RemoveInterested {
		interested = models.RemoveID(interested, id)
	}
	p.CreatedEvents, p.InterestedEvents = created, interested
	return nil
}

// memKV is an in-memory KVStore that ignores TTLs.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fakeGeocoder struct {
	mu         sync.Mutex
	address    string
	reverseErr error
	// block, when set, holds ReverseGeocode until it is closed.
	block     chan struct{}
	places    map[string]models.LatLng
	searchErr error
	// searchBlock, when set, holds ForwardGeocode until it is closed.
	searchBlock chan struct{}
}

func (g *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	g.mu.Lock()
	block := g.block
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reverseErr != nil {
		return "", g.reverseErr
	}
	return g.address, nil
}

func (g *fakeGeocoder) ForwardGeocode(_ context.Context, query string) (models.LatLng, bool, error) {
	g.mu.Lock()
	block := g.searchBlock
	g.mu.Unlock()
	if block != nil {
		<-block
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.searchErr != nil {
		return models.LatLng{}, false, g.searchErr
	}
	p, ok := g.places[query]
	return p, ok, nil
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	changes []Change
}

func (b *recordingBroadcaster) Publish(_ context.Context, changeType, eventID, userID, origin string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, Change{Type: changeType, EventID: eventID, UserID: userID, Origin: origin})
	return nil
}

type testEnv struct {
	backend  *fakeBackend
	geocoder *fakeGeocoder
	kv       *memKV
	registry *Registry
	ws       *Workspace
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := newFakeBackend()
	geocoder := &fakeGeocoder{address: "Hyde Park, London", places: map[string]models.LatLng{}}
	kv := newMemKV()
	registry := NewRegistry(RegistryDeps{
		Backend:    backend,
		KV:         kv,
		Geocoder:   geocoder,
		Categories: testCategories,
		Logger:     zap.NewNop(),
	})
	return &testEnv{backend: backend, geocoder: geocoder, kv: kv, registry: registry, ws: registry.Create()}
}

// loginAlice signs in user u1 (Alice) in the env's workspace.
func (e *testEnv) loginAlice(t *testing.T) {
	t.Helper()
	e.backend.addUser("u1", "Alice", "alice@example.com", "secret1")
	if _, err := e.ws.Session.Login(context.Background(), "alice@example.com", "secret1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func hasToast(toasts []Toast, kind ToastKind, msg string) bool {
	for _, toast := range toasts {
		if toast.Kind == kind && toast.Message == msg {
			return true
		}
	}
	return false
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
