package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type ToastKind string

const (
	ToastInfo    ToastKind = "info"
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"

	DefaultToastTTL = 3 * time.Second
	maxToasts       = 20
)

type Toast struct {
	ID        string    `json:"id"`
	Kind      ToastKind `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Toaster keeps the transient notifications of one client until they expire.
type Toaster struct {
	mu     sync.Mutex
	toasts []Toast
	now    func() time.Time
}

func NewToaster() *Toaster {
	return &Toaster{now: time.Now}
}

func (t *Toaster) Info(msg string)    { t.Push(ToastInfo, msg, DefaultToastTTL) }
func (t *Toaster) Success(msg string) { t.Push(ToastSuccess, msg, DefaultToastTTL) }
func (t *Toaster) Error(msg string)   { t.Push(ToastError, msg, DefaultToastTTL) }

func (t *Toaster) Push(kind ToastKind, msg string, ttl time.Duration) Toast {
	now := t.now()
	toast := Toast{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)
	t.toasts = append(t.toasts, toast)
	if len(t.toasts) > maxToasts {
		t.toasts = t.toasts[len(t.toasts)-maxToasts:]
	}
	return toast
}

// Active returns the toasts that have not expired yet, oldest first.
func (t *Toaster) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	return append([]Toast{}, t.toasts...)
}

func (t *Toaster) pruneLocked(now time.Time) {
	kept := t.toasts[:0]
	for _, toast := range t.toasts {
		if now.Before(toast.ExpiresAt) {
			kept = append(kept, toast)
		}
	}
	t.toasts = kept
}
