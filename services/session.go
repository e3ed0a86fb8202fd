package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

// Signal tells the view layer which screen the session is on.
type Signal string

const (
	SignalReady   Signal = "ready"
	SignalGuest   Signal = "guest"
	SignalEntry   Signal = "entry"
	SignalRefresh Signal = "refresh"
)

type AppState struct {
	User          models.User    `json:"user"`
	Events        []models.Event `json:"events"`
	Authenticated bool           `json:"authenticated"`
	Screen        Signal         `json:"screen"`
	Permission    PermissionFlag `json:"location_permission"`
}

type ProfileView struct {
	User       models.User    `json:"user"`
	Created    []models.Event `json:"created_events"`
	Interested []models.Event `json:"interested_events"`
}

type SessionDeps struct {
	ClientID    string
	Backend     Backend
	Store       *EventStore
	Cache       *LocalCache
	Map         *MapView
	Toasts      *Toaster
	Broadcaster Broadcaster
	Logger      *zap.Logger
}

// SessionController owns the current user and the event collection of one
// client. All mutation of either goes through its methods.
type SessionController struct {
	mu       sync.Mutex
	token    string
	user     models.User
	events   []models.Event
	screen   Signal
	// inFlight maps events with a pending interest toggle to the wanted value.
	inFlight map[string]bool

	clientID    string
	backend     Backend
	store       *EventStore
	cache       *LocalCache
	mapView     *MapView
	toasts      *Toaster
	broadcaster Broadcaster
	listeners   []func(Signal)
	logger      *zap.Logger
}

func NewSessionController(deps SessionDeps) *SessionController {
	b := deps.Broadcaster
	if b == nil {
		b = nopBroadcaster{}
	}
	return &SessionController{
		user:        models.AnonymousUser(),
		events:      []models.Event{},
		screen:      SignalEntry,
		inFlight:    make(map[string]bool),
		clientID:    deps.ClientID,
		backend:     deps.Backend,
		store:       deps.Store,
		cache:       deps.Cache,
		mapView:     deps.Map,
		toasts:      deps.Toasts,
		broadcaster: b,
		logger:      deps.Logger.With(zap.String("client_id", deps.ClientID)),
	}
}

func (s *SessionController) Subscribe(fn func(Signal)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *SessionController) Snapshot(ctx context.Context) AppState {
	s.mu.Lock()
	st := AppState{
		User:          s.user.Clone(),
		Events:        append([]models.Event{}, s.events...),
		Authenticated: !s.user.IsGuest(),
		Screen:        s.screen,
	}
	s.mu.Unlock()
	st.Permission = s.cache.Permission(ctx)
	return st
}

func (s *SessionController) CurrentUser() models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// Token returns the bearer token of the current session, if any.
func (s *SessionController) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Initialize restores the session behind token. Without a live session only
// the event list is loaded and the user stays anonymous.
func (s *SessionController) Initialize(ctx context.Context, token string) (AppState, error) {
	var sess *AuthSession
	if token != "" {
		var err error
		sess, err = s.backend.GetSession(ctx, token)
		if err != nil {
			s.logger.Warn("Session lookup failed", zap.Error(err))
			sess = nil
		}
	}

	if sess != nil {
		if err := s.adopt(ctx, sess); err != nil {
			s.resetToEntry()
			s.toasts.Error("Failed to initialize the app. Please refresh the page.")
			return s.Snapshot(ctx), err
		}
		s.centerOnUser(ctx)
		return s.Snapshot(ctx), nil
	}

	events, err := s.store.List(ctx)
	if err != nil {
		s.resetToEntry()
		s.toasts.Error("Failed to load events")
		return s.Snapshot(ctx), err
	}
	s.mu.Lock()
	s.token = ""
	s.user = models.AnonymousUser()
	s.events = events
	s.screen = SignalGuest
	s.mu.Unlock()

	s.renderMarkers()
	s.centerOnUser(ctx)
	s.emit(SignalGuest)
	return s.Snapshot(ctx), nil
}

// SignUp registers an account. The display name is kept in the local cache
// until the email address is confirmed.
func (s *SessionController) SignUp(ctx context.Context, email, password, name string) (*SignUpResult, error) {
	if err := s.cache.SetPendingName(ctx, name); err != nil {
		s.logger.Warn("Failed to cache pending name", zap.Error(err))
	}
	result, err := s.backend.SignUp(ctx, email, password, name)
	if err != nil {
		s.logger.Info("Signup failed", zap.String("email", email), zap.Error(err))
		s.toasts.Push(ToastError, "Signup failed: "+errorMessage(err), 10*time.Second)
		return nil, err
	}
	if result.NeedsEmailConfirmation {
		s.toasts.Push(ToastInfo, result.Message, 15*time.Second)
		return result, nil
	}
	if result.Session != nil {
		if err := s.adopt(ctx, result.Session); err != nil {
			return nil, err
		}
		_ = s.cache.ClearPendingName(ctx)
	}
	return result, nil
}

// ConfirmEmail completes signup using the confirmation token from the email
// link and the display name cached at signup.
func (s *SessionController) ConfirmEmail(ctx context.Context, confirmToken string) (AppState, error) {
	name := s.cache.PendingName(ctx)
	sess, err := s.backend.ConfirmEmail(ctx, confirmToken, name)
	if err != nil {
		s.toasts.Error("Email verification failed. Please try again.")
		return s.Snapshot(ctx), err
	}
	if err := s.adopt(ctx, sess); err != nil {
		return s.Snapshot(ctx), err
	}
	if err := s.cache.ClearPendingName(ctx); err != nil {
		s.logger.Warn("Failed to clear pending name", zap.Error(err))
	}
	s.toasts.Success("Email verified successfully! Welcome to the app.")
	return s.Snapshot(ctx), nil
}

func (s *SessionController) Login(ctx context.Context, email, password string) (models.User, error) {
	sess, err := s.backend.Login(ctx, email, password)
	if err != nil {
		msg := errorMessage(err)
		if msg == "Invalid login credentials" {
			msg = "Invalid email or password"
		}
		s.toasts.Error(msg)
		return s.CurrentUser(), err
	}
	if err := s.adopt(ctx, sess); err != nil {
		return s.CurrentUser(), err
	}
	s.centerOnUser(ctx)
	user := s.CurrentUser()
	if user.Name != "" {
		s.toasts.Success("Welcome " + user.Name + "!")
	}
	return user, nil
}

// Logout ends the session. If the backend call fails nothing changes locally.
func (s *SessionController) Logout(ctx context.Context) error {
	token := s.Token()
	if token != "" {
		if err := s.backend.Logout(ctx, token); err != nil {
			s.logger.Error("Logout failed", zap.Error(err))
			s.toasts.Error("Failed to logout. Please try again.")
			return errors.NewRemoteError("logout", err)
		}
	}
	s.resetToEntry()
	s.toasts.Info("You have been logged out")
	return nil
}

// ToggleInterest flips the current user's interest in eventID and persists
// it to both the event's interest relation and the user's own list. When the
// second write fails the first one is reverted and the error is returned.
func (s *SessionController) ToggleInterest(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	if s.user.IsGuest() {
		s.mu.Unlock()
		return false, errors.ErrUnauthorized
	}
	if indexOfEvent(s.events, eventID) < 0 {
		s.mu.Unlock()
		return false, errors.ErrNotFound
	}
	if _, busy := s.inFlight[eventID]; busy {
		s.mu.Unlock()
		return false, errors.ErrBusy
	}
	userID := s.user.ID
	want := !s.user.IsInterested(eventID)
	s.inFlight[eventID] = want
	s.applyInterestLocked(eventID, userID, want)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, eventID)
		s.mu.Unlock()
	}()

	rollback := func() {
		s.mu.Lock()
		delete(s.inFlight, eventID)
		if s.user.ID == userID {
			s.applyInterestLocked(eventID, userID, !want)
		}
		s.mu.Unlock()
		s.toasts.Error("Failed to update interest. Please try again.")
	}

	if err := s.store.SetInterest(ctx, eventID, userID, want); err != nil {
		rollback()
		return !want, err
	}
	if err := s.store.SetListMembership(ctx, userID, ListInterested, eventID, want); err != nil {
		if cerr := s.store.SetInterest(ctx, eventID, userID, !want); cerr != nil {
			s.logger.Error("Failed to revert interest relation",
				zap.String("event_id", eventID),
				zap.Error(cerr))
		}
		rollback()
		return !want, err
	}

	s.renderMarkers()
	s.emit(SignalRefresh)
	if err := s.broadcaster.Publish(ctx, ChangeInterestChanged, eventID, userID, s.clientID); err != nil {
		s.logger.Warn("Failed to broadcast interest change", zap.Error(err))
	}
	return want, nil
}

// RecordCreatedEvent adds a freshly created event to the collection and to
// the creator's list, then persists the list entry. The entry is written for
// event.CreatorID even when this client has signed out since the event was
// created, so the event never ends up without its creator.
func (s *SessionController) RecordCreatedEvent(ctx context.Context, event models.Event) error {
	if event.CreatorID == "" {
		return errors.ErrUnauthorized
	}
	s.mu.Lock()
	current := !s.user.IsGuest() && s.user.ID == event.CreatorID
	alreadyListed := current && s.user.HasCreated(event.ID)
	if current {
		s.user.CreatedEvents = models.AddID(s.user.CreatedEvents, event.ID)
		if indexOfEvent(s.events, event.ID) < 0 {
			s.events = append(s.events, event)
		}
	}
	s.mu.Unlock()

	if err := s.store.SetListMembership(ctx, event.CreatorID, ListCreated, event.ID, true); err != nil {
		if current && !alreadyListed {
			s.mu.Lock()
			if s.user.ID == event.CreatorID {
				s.user.CreatedEvents = models.RemoveID(s.user.CreatedEvents, event.ID)
			}
			s.mu.Unlock()
		}
		s.renderMarkers()
		s.toasts.Error("Failed to create event. Please try again.")
		return err
	}
	if !current {
		s.logger.Info("Recorded event for a creator no longer signed in here",
			zap.String("event_id", event.ID),
			zap.String("creator_id", event.CreatorID))
	}

	s.renderMarkers()
	s.emit(SignalRefresh)
	s.toasts.Success("Event created successfully!")
	if err := s.broadcaster.Publish(ctx, ChangeEventCreated, event.ID, event.CreatorID, s.clientID); err != nil {
		s.logger.Warn("Failed to broadcast new event", zap.Error(err))
	}
	return nil
}

// Refresh reloads the event list and the signed-in user's profile, then
// redraws the markers. Interest toggles still in flight keep their optimistic
// value over the reloaded profile.
func (s *SessionController) Refresh(ctx context.Context) error {
	events, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.screen == SignalEntry {
		s.mu.Unlock()
		return nil
	}
	userID := s.user.ID
	s.mu.Unlock()

	var profile *models.Profile
	if userID != "" {
		profile, err = s.backend.GetProfile(ctx, userID)
		if err != nil {
			s.logger.Warn("Failed to reload profile", zap.String("user_id", userID), zap.Error(err))
			profile = nil
		}
	}

	s.mu.Lock()
	if s.screen == SignalEntry || s.user.ID != userID {
		s.mu.Unlock()
		return nil
	}
	s.events = events
	if profile != nil {
		s.user = normalizeProfile(profile)
	}
	for eventID, want := range s.inFlight {
		s.applyInterestLocked(eventID, userID, want)
	}
	s.mu.Unlock()

	s.renderMarkers()
	s.emit(SignalRefresh)
	return nil
}

// Profile loads a fresh event list and splits out the events the user
// created and the ones they are interested in.
func (s *SessionController) Profile(ctx context.Context) (ProfileView, error) {
	user := s.CurrentUser()
	if user.IsGuest() {
		return ProfileView{}, errors.ErrUnauthorized
	}
	events, err := s.store.List(ctx)
	if err != nil {
		s.toasts.Error("Failed to load profile events")
		return ProfileView{}, err
	}
	view := ProfileView{User: user, Created: []models.Event{}, Interested: []models.Event{}}
	for _, e := range events {
		if user.HasCreated(e.ID) {
			view.Created = append(view.Created, e)
		}
		if user.IsInterested(e.ID) {
			view.Interested = append(view.Interested, e)
		}
	}
	return view, nil
}

// UpdateLocationPermission records the answer to the location prompt. A
// denial falls back to the default view and is reported as PermissionError.
func (s *SessionController) UpdateLocationPermission(ctx context.Context, granted bool, pos *models.LatLng) error {
	if !granted || pos == nil || !pos.Valid() {
		if err := s.cache.SetPermission(ctx, PermissionDenied); err != nil {
			s.logger.Warn("Failed to store permission flag", zap.Error(err))
		}
		s.mapView.CenterOnDefault()
		return errors.NewPermissionError("Location access denied; showing the default map view")
	}
	if err := s.cache.SetPermission(ctx, PermissionGranted); err != nil {
		s.logger.Warn("Failed to store permission flag", zap.Error(err))
	}
	if err := s.cache.SetLastPosition(ctx, *pos); err != nil {
		s.logger.Warn("Failed to cache position", zap.Error(err))
	}
	return s.mapView.CenterOn(pos.Lat, pos.Lng, DefaultZoom)
}

// CurrentPosition returns the device position shared within the last five
// minutes.
func (s *SessionController) CurrentPosition(ctx context.Context) (models.LatLng, error) {
	if s.cache.Permission(ctx) == PermissionDenied {
		return models.LatLng{}, errors.NewPermissionError("Location access was denied")
	}
	pos, ok := s.cache.LastPosition(ctx)
	if !ok {
		return models.LatLng{}, errors.NewPermissionError("No recent device position; share your location first")
	}
	return pos, nil
}

func (s *SessionController) adopt(ctx context.Context, sess *AuthSession) error {
	profile, err := s.backend.GetProfile(ctx, sess.UserID)
	if err != nil {
		s.logger.Error("Failed to load profile", zap.String("user_id", sess.UserID), zap.Error(err))
		return errors.NewRemoteError("load profile", err)
	}
	events, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	user := normalizeProfile(profile)
	s.mu.Lock()
	s.token = sess.Token
	s.user = user
	s.events = events
	s.screen = SignalReady
	s.mu.Unlock()

	s.logger.Info("Session ready", zap.String("user_id", user.ID), zap.Int("events", len(events)))
	s.renderMarkers()
	s.emit(SignalReady)
	return nil
}

func (s *SessionController) resetToEntry() {
	s.mu.Lock()
	s.token = ""
	s.user = models.AnonymousUser()
	s.events = []models.Event{}
	s.screen = SignalEntry
	s.mu.Unlock()

	s.mapView.ClearEventMarkers()
	s.emit(SignalEntry)
}

func (s *SessionController) centerOnUser(ctx context.Context) {
	if s.cache.Permission(ctx) == PermissionGranted {
		if pos, ok := s.cache.LastPosition(ctx); ok {
			if err := s.mapView.CenterOn(pos.Lat, pos.Lng, DefaultZoom); err == nil {
				return
			}
		}
	}
	s.mapView.CenterOnDefault()
}

func (s *SessionController) renderMarkers() {
	s.mu.Lock()
	events := append([]models.Event{}, s.events...)
	viewer := s.user.Clone()
	s.mu.Unlock()
	s.mapView.RenderEventMarkers(events, viewer)
}

func (s *SessionController) applyInterestLocked(eventID, userID string, interested bool) {
	i := indexOfEvent(s.events, eventID)
	if interested {
		s.user.InterestedEvents = models.AddID(s.user.InterestedEvents, eventID)
		if i >= 0 {
			s.events[i].InterestedUsers = models.AddID(s.events[i].InterestedUsers, userID)
		}
		return
	}
	s.user.InterestedEvents = models.RemoveID(s.user.InterestedEvents, eventID)
	if i >= 0 {
		s.events[i].InterestedUsers = models.RemoveID(s.events[i].InterestedUsers, userID)
	}
}

func (s *SessionController) emit(sig Signal) {
	s.mu.Lock()
	listeners := append([]func(Signal){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(sig)
	}
}

// normalizeProfile turns a stored profile into a User whose lists are always
// present, whatever the stored document held.
func normalizeProfile(p *models.Profile) models.User {
	return models.User{
		ID:               p.ID,
		Name:             strings.TrimSpace(p.Name),
		CreatedEvents:    models.IDList(p.CreatedEvents),
		InterestedEvents: models.IDList(p.InterestedEvents),
	}
}

func indexOfEvent(events []models.Event, id string) int {
	for i, e := range events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func errorMessage(err error) string {
	if apiErr, ok := err.(*errors.APIError); ok {
		return apiErr.Message
	}
	return err.Error()
}
