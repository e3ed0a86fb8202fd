package services

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

type Step int

const (
	StepDetails Step = iota + 1
	StepLocation
	StepPreview
)

func (s Step) String() string {
	switch s {
	case StepDetails:
		return "details"
	case StepLocation:
		return "location"
	case StepPreview:
		return "preview"
	default:
		return "unknown"
	}
}

const (
	opLookup   = "address_lookup"
	opPosition = "current_position"
	opSearch   = "address_search"
	opSubmit   = "submit"
)

type Details struct {
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
	Date        string `json:"date" validate:"notblank"`
	Time        string `json:"time" validate:"notblank"`
	Category    string `json:"category" validate:"notblank"`
}

// Draft is the in-progress event held by an open wizard.
type Draft struct {
	Step     Step           `json:"step"`
	Details  Details        `json:"details"`
	Location *models.LatLng `json:"location,omitempty"`
}

type WizardState struct {
	Open bool `json:"open"`
	Draft
	StepName  string `json:"step_name"`
	Address   string `json:"address,omitempty"`
	Pending   string `json:"pending,omitempty"`
	CanPrev   bool   `json:"can_prev"`
	CanNext   bool   `json:"can_next"`
	CanSubmit bool   `json:"can_submit"`
}

// WizardOwner supplies the creator identity and records created events on
// the creator's profile.
type WizardOwner interface {
	CurrentUser() models.User
	RecordCreatedEvent(ctx context.Context, event models.Event) error
}

type PositionSource interface {
	CurrentPosition(ctx context.Context) (models.LatLng, error)
}

type transition struct {
	to   Step
	gate func(*Wizard) error
}

var forward = map[Step]transition{
	StepDetails:  {to: StepLocation, gate: (*Wizard).detailsGate},
	StepLocation: {to: StepPreview, gate: (*Wizard).locationGate},
}

type WizardDeps struct {
	Store      *EventStore
	Owner      WizardOwner
	Positions  PositionSource
	Geocoder   Geocoder
	Map        *MapView
	Toasts     *Toaster
	Categories []models.Category
	Logger     *zap.Logger
}

// Wizard drives the three-step event creation flow. At most one async
// operation runs at a time; closing bumps gen so late results are dropped.
type Wizard struct {
	mu      sync.Mutex
	open    bool
	draft   Draft
	address string
	// created is set once the backend accepted the event but the creator's
	// profile has not recorded it yet; a retry only redoes the recording.
	created *models.Event
	pending string
	gen     uint64

	categories map[string]bool
	store      *EventStore
	owner      WizardOwner
	positions  PositionSource
	geocoder   Geocoder
	mapView    *MapView
	toasts     *Toaster
	listeners  []func(WizardState)
	logger     *zap.Logger
}

func NewWizard(deps WizardDeps) *Wizard {
	cats := make(map[string]bool, len(deps.Categories))
	for _, c := range deps.Categories {
		cats[c.Key] = true
	}
	w := &Wizard{
		draft:      Draft{Step: StepDetails},
		categories: cats,
		store:      deps.Store,
		owner:      deps.Owner,
		positions:  deps.Positions,
		geocoder:   deps.Geocoder,
		mapView:    deps.Map,
		toasts:     deps.Toasts,
		logger:     deps.Logger,
	}
	w.mapView.OnMapClick(func(p models.LatLng) error {
		if _, err := w.SelectLocation(p); err != nil {
			w.logger.Debug("Map click rejected", zap.Error(err))
			return err
		}
		return nil
	})
	return w
}

// Subscribe registers fn to receive every state change.
func (w *Wizard) Subscribe(fn func(WizardState)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Wizard) State() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// Open starts a fresh draft, discarding any previous one.
func (w *Wizard) Open() WizardState {
	w.mu.Lock()
	w.gen++
	w.open = true
	w.resetLocked()
	st := w.stateLocked()
	w.mu.Unlock()

	w.mapView.HideSelectionMarker()
	w.mapView.SetSelectionMode(false)
	w.notify(st)
	return st
}

// Close discards the draft. Results of operations still in flight are
// ignored when they arrive.
func (w *Wizard) Close() WizardState {
	w.mu.Lock()
	if !w.open {
		st := w.stateLocked()
		w.mu.Unlock()
		return st
	}
	w.gen++
	w.open = false
	w.resetLocked()
	st := w.stateLocked()
	w.mu.Unlock()

	w.mapView.HideSelectionMarker()
	w.mapView.SetSelectionMode(false)
	w.notify(st)
	return st
}

func (w *Wizard) UpdateDetails(d Details) (WizardState, error) {
	w.mu.Lock()
	if err := w.checkIdleLocked(); err != nil {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, err
	}
	if w.draft.Step != StepDetails {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, errors.ErrInvalidTransition
	}
	w.draft.Details = Details{
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		Date:        strings.TrimSpace(d.Date),
		Time:        strings.TrimSpace(d.Time),
		Category:    strings.TrimSpace(d.Category),
	}
	st := w.stateLocked()
	w.mu.Unlock()

	w.notify(st)
	return st, nil
}

// Next advances one step if the current step's gate passes. Entering the
// preview resolves the selected location's address; a failed lookup shows
// a fallback string instead of blocking.
func (w *Wizard) Next(ctx context.Context) (WizardState, error) {
	w.mu.Lock()
	if err := w.checkIdleLocked(); err != nil {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, err
	}
	t, ok := forward[w.draft.Step]
	if !ok {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, errors.ErrInvalidTransition
	}
	if err := t.gate(w); err != nil {
		st := w.stateLocked()
		w.mu.Unlock()
		w.report(err, "")
		return st, err
	}
	w.draft.Step = t.to
	if t.to != StepPreview {
		st := w.stateLocked()
		w.mu.Unlock()
		w.mapView.SetSelectionMode(t.to == StepLocation)
		w.notify(st)
		return st, nil
	}

	w.address = AddressLoading
	w.pending = opLookup
	gen := w.gen
	loc := *w.draft.Location
	st := w.stateLocked()
	w.mu.Unlock()
	w.mapView.SetSelectionMode(false)
	w.notify(st)

	address := DescribeLocation(ctx, w.geocoder, loc, w.logger)

	w.mu.Lock()
	if gen != w.gen {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, nil
	}
	w.pending = ""
	w.address = address
	st = w.stateLocked()
	w.mu.Unlock()
	w.notify(st)
	return st, nil
}

func (w *Wizard) Prev() (WizardState, error) {
	w.mu.Lock()
	if err := w.checkIdleLocked(); err != nil {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, err
	}
	if w.draft.Step <= StepDetails {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, errors.ErrInvalidTransition
	}
	w.draft.Step--
	w.address = ""
	st := w.stateLocked()
	w.mu.Unlock()

	w.mapView.SetSelectionMode(st.Step == StepLocation)
	w.notify(st)
	return st, nil
}

// SelectLocation records a location picked on the map.
func (w *Wizard) SelectLocation(p models.LatLng) (WizardState, error) {
	w.mu.Lock()
	if err := w.checkLocationStepLocked(); err != nil {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, err
	}
	if !p.Valid() {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, errors.NewValidationError("Location coordinates are invalid", "location")
	}
	w.draft.Location = &p
	st := w.stateLocked()
	w.mu.Unlock()

	if err := w.mapView.PlaceSelectionMarker(p.Lat, p.Lng); err != nil {
		return st, err
	}
	w.notify(st)
	return st, nil
}

// UseCurrentLocation selects the device's last known position.
func (w *Wizard) UseCurrentLocation(ctx context.Context) (WizardState, error) {
	return w.resolveLocation(opPosition, func() (models.LatLng, error) {
		return w.positions.CurrentPosition(ctx)
	})
}

// SearchAddress selects the first match for query.
func (w *Wizard) SearchAddress(ctx context.Context, query string) (WizardState, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		err := errors.NewValidationError("Please enter an address", "address")
		w.report(err, "")
		return w.State(), err
	}
	return w.resolveLocation(opSearch, func() (models.LatLng, error) {
		pos, found, err := w.geocoder.ForwardGeocode(ctx, query)
		if err != nil {
			return models.LatLng{}, err
		}
		if !found {
			return models.LatLng{}, errors.NewValidationError("Address not found. Please try again or select location on map.", "address")
		}
		return pos, nil
	})
}

func (w *Wizard) resolveLocation(op string, resolve func() (models.LatLng, error)) (WizardState, error) {
	w.mu.Lock()
	if err := w.checkLocationStepLocked(); err != nil {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, err
	}
	w.pending = op
	gen := w.gen
	st := w.stateLocked()
	w.mu.Unlock()
	w.notify(st)

	pos, err := resolve()

	w.mu.Lock()
	if gen != w.gen {
		st := w.stateLocked()
		w.mu.Unlock()
		return st, errors.ErrNoWizard
	}
	w.pending = ""
	if err == nil && !pos.Valid() {
		err = errors.NewValidationError("Location coordinates are invalid", "location")
	}
	if err != nil {
		st := w.stateLocked()
		w.mu.Unlock()
		w.notify(st)
		w.report(err, "Error searching for address")
		return st, err
	}
	w.draft.Location = &pos
	st = w.stateLocked()
	w.mu.Unlock()

	_ = w.mapView.PlaceSelectionMarker(pos.Lat, pos.Lng)
	_ = w.mapView.CenterOn(pos.Lat, pos.Lng, FocusZoom)
	w.notify(st)
	return st, nil
}

// Submit creates the event from the draft. On failure the draft stays as it
// is so the caller can retry.
func (w *Wizard) Submit(ctx context.Context) (*models.Event, error) {
	user := w.owner.CurrentUser()

	w.mu.Lock()
	if err := w.checkIdleLocked(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if w.draft.Step != StepPreview {
		w.mu.Unlock()
		return nil, errors.ErrInvalidTransition
	}
	if w.draft.Location == nil {
		w.mu.Unlock()
		err := errors.NewValidationError("Please select a location for your event", "location")
		w.report(err, "")
		return nil, err
	}
	if user.IsGuest() {
		w.mu.Unlock()
		w.report(errors.ErrUnauthorized, "")
		return nil, errors.ErrUnauthorized
	}
	d := w.draft.Details
	event := models.Event{
		Title:       d.Title,
		Description: d.Description,
		Date:        d.Date,
		Time:        d.Time,
		Category:    d.Category,
		Lat:         w.draft.Location.Lat,
		Lng:         w.draft.Location.Lng,
		CreatorID:   user.ID,
		CreatorName: user.Name,
	}
	if missing := event.MissingFields(); len(missing) > 0 {
		w.mu.Unlock()
		err := errors.NewValidationError("Please fill in all event details", missing...)
		w.report(err, "")
		return nil, err
	}
	created := w.created
	w.pending = opSubmit
	gen := w.gen
	st := w.stateLocked()
	w.mu.Unlock()
	w.notify(st)

	fail := func(err error) (*models.Event, error) {
		w.mu.Lock()
		if gen == w.gen {
			w.pending = ""
		}
		st := w.stateLocked()
		w.mu.Unlock()
		w.notify(st)
		return nil, err
	}

	if created == nil {
		var err error
		created, err = w.store.Create(ctx, event)
		if err != nil {
			w.report(err, "Failed to create event. Please try again.")
			return fail(err)
		}
		w.mu.Lock()
		if gen == w.gen {
			w.created = created
		}
		w.mu.Unlock()
	}

	// RecordCreatedEvent reports its own failures.
	if err := w.owner.RecordCreatedEvent(ctx, *created); err != nil {
		return fail(err)
	}

	w.mu.Lock()
	if gen == w.gen {
		w.gen++
		w.open = false
		w.resetLocked()
	}
	st = w.stateLocked()
	w.mu.Unlock()

	w.mapView.HideSelectionMarker()
	w.mapView.SetSelectionMode(false)
	w.notify(st)
	w.logger.Info("Event created",
		zap.String("event_id", created.ID),
		zap.String("creator_id", user.ID))
	return created, nil
}

func (w *Wizard) detailsGate() error {
	if err := ValidateStruct(w.draft.Details, "Please fill in all event details"); err != nil {
		return err
	}
	if len(w.categories) > 0 && !w.categories[w.draft.Details.Category] {
		return errors.NewValidationError("Unknown event category", "category")
	}
	return nil
}

func (w *Wizard) locationGate() error {
	if w.draft.Location == nil {
		return errors.NewValidationError("Please select a location for your event", "location")
	}
	return nil
}

func (w *Wizard) checkIdleLocked() error {
	if !w.open {
		return errors.ErrNoWizard
	}
	if w.pending != "" {
		return errors.ErrBusy
	}
	return nil
}

func (w *Wizard) checkLocationStepLocked() error {
	if err := w.checkIdleLocked(); err != nil {
		return err
	}
	if w.draft.Step != StepLocation {
		return errors.ErrInvalidTransition
	}
	return nil
}

func (w *Wizard) resetLocked() {
	w.draft = Draft{Step: StepDetails}
	w.address = ""
	w.created = nil
	w.pending = ""
}

func (w *Wizard) stateLocked() WizardState {
	d := w.draft
	if d.Location != nil {
		loc := *d.Location
		d.Location = &loc
	}
	idle := w.open && w.pending == ""
	return WizardState{
		Open:      w.open,
		Draft:     d,
		StepName:  d.Step.String(),
		Address:   w.address,
		Pending:   w.pending,
		CanPrev:   idle && d.Step > StepDetails,
		CanNext:   idle && d.Step < StepPreview,
		CanSubmit: idle && d.Step == StepPreview && d.Location != nil,
	}
}

// report shows err as an error toast, using remoteMsg for failed remote
// calls. Busy and closed-wizard errors are not shown.
func (w *Wizard) report(err error, remoteMsg string) {
	if w.toasts == nil || errors.HasCode(err, errors.ErrBusy.Code) || errors.HasCode(err, errors.ErrNoWizard.Code) {
		return
	}
	if remoteMsg != "" && !errors.IsValidation(err) && !errors.IsPermission(err) {
		w.toasts.Error(remoteMsg)
		return
	}
	w.toasts.Error(errorMessage(err))
}

func (w *Wizard) notify(st WizardState) {
	w.mu.Lock()
	listeners := append([]func(WizardState){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}
