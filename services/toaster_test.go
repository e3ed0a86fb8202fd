package services

import (
	"fmt"
	"testing"
	"time"
)

func TestToasterExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	toaster := NewToaster()
	toaster.now = func() time.Time { return now }

	toaster.Success("Saved")
	toaster.Push(ToastInfo, "Check your email", 15*time.Second)
	if got := len(toaster.Active()); got != 2 {
		t.Fatalf("expected 2 toasts, got %d", got)
	}

	now = now.Add(DefaultToastTTL)
	active := toaster.Active()
	if len(active) != 1 || active[0].Message != "Check your email" {
		t.Errorf("expected only the long toast left, got %+v", active)
	}

	now = now.Add(15 * time.Second)
	if got := len(toaster.Active()); got != 0 {
		t.Errorf("expected all toasts expired, got %d", got)
	}
}

func TestToasterKeepsNewest(t *testing.T) {
	toaster := NewToaster()
	for i := 0; i < maxToasts+5; i++ {
		toaster.Error(fmt.Sprintf("error %d", i))
	}
	active := toaster.Active()
	if len(active) != maxToasts {
		t.Fatalf("expected %d toasts, got %d", maxToasts, len(active))
	}
	if active[0].Message != "error 5" {
		t.Errorf("expected oldest toasts dropped, first is %q", active[0].Message)
	}
	if active[0].Kind != ToastError || active[0].ID == "" {
		t.Errorf("unexpected toast %+v", active[0])
	}
}
