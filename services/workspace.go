package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-pinmap/models"
)

// Workspace bundles the state of one connected client: its cache, map,
// session and event creation wizard.
type Workspace struct {
	ID      string
	Cache   *LocalCache
	Map     *MapView
	Toasts  *Toaster
	Session *SessionController
	Wizard  *Wizard

	mu       sync.Mutex
	lastSeen time.Time
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

type RegistryDeps struct {
	Backend     Backend
	KV          KVStore
	Geocoder    Geocoder
	Broadcaster Broadcaster
	Categories  []models.Category
	IdleTTL     time.Duration
	Logger      *zap.Logger
}

// Registry keeps workspaces by client id and evicts idle ones.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	store      *EventStore
	deps       RegistryDeps
	now        func() time.Time
	logger     *zap.Logger
}

func NewRegistry(deps RegistryDeps) *Registry {
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = 2 * time.Hour
	}
	return &Registry{
		workspaces: make(map[string]*Workspace),
		store:      NewEventStore(deps.Backend, deps.Logger),
		deps:       deps,
		now:        time.Now,
		logger:     deps.Logger,
	}
}

func (r *Registry) Store() *EventStore {
	return r.store
}

// Create wires a new workspace under a fresh client id.
func (r *Registry) Create() *Workspace {
	id := uuid.New().String()
	logger := r.logger.With(zap.String("client_id", id))

	mapView := NewMapView(r.deps.Categories, logger)
	toasts := NewToaster()
	cache := NewLocalCache(r.deps.KV, id)
	session := NewSessionController(SessionDeps{
		ClientID:    id,
		Backend:     r.deps.Backend,
		Store:       r.store,
		Cache:       cache,
		Map:         mapView,
		Toasts:      toasts,
		Broadcaster: r.deps.Broadcaster,
		Logger:      r.logger,
	})
	wizard := NewWizard(WizardDeps{
		Store:      r.store,
		Owner:      session,
		Positions:  session,
		Geocoder:   r.deps.Geocoder,
		Map:        mapView,
		Toasts:     toasts,
		Categories: r.deps.Categories,
		Logger:     logger,
	})
	session.Subscribe(func(sig Signal) {
		if sig == SignalEntry {
			wizard.Close()
		}
	})

	ws := &Workspace{
		ID:       id,
		Cache:    cache,
		Map:      mapView,
		Toasts:   toasts,
		Session:  session,
		Wizard:   wizard,
		lastSeen: r.now(),
	}
	r.mu.Lock()
	r.workspaces[id] = ws
	r.mu.Unlock()
	r.logger.Debug("Workspace created", zap.String("client_id", id))
	return ws
}

func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.RLock()
	ws, ok := r.workspaces[id]
	r.mu.RUnlock()
	if ok {
		ws.touch(r.now())
	}
	return ws, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}

// RefreshAll reloads events in every workspace except the origin of the
// change, which already holds it.
func (r *Registry) RefreshAll(ctx context.Context, origin string) {
	r.mu.RLock()
	targets := make([]*Workspace, 0, len(r.workspaces))
	for id, ws := range r.workspaces {
		if id != origin {
			targets = append(targets, ws)
		}
	}
	r.mu.RUnlock()

	for _, ws := range targets {
		if err := ws.Session.Refresh(ctx); err != nil {
			r.logger.Warn("Workspace refresh failed", zap.String("client_id", ws.ID), zap.Error(err))
		}
	}
}

// Evict drops workspaces idle for longer than the configured TTL.
func (r *Registry) Evict() int {
	cutoff := r.now().Add(-r.deps.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, ws := range r.workspaces {
		if ws.idleSince().Before(cutoff) {
			ws.Wizard.Close()
			delete(r.workspaces, id)
			n++
		}
	}
	return n
}

// RunEviction calls Evict every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(); n > 0 {
				r.logger.Info("Evicted idle workspaces", zap.Int("count", n), zap.Int("remaining", r.Len()))
			}
		}
	}
}
