package reminders

import (
	"errors"
	"testing"
	"time"

	"payremind/internal/store"
	logx "payremind/pkg/logx"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return New(st, "62", logx.Nop()), st
}

func TestCreateNormalizesAndStores(t *testing.T) {
	svc, st := newService(t)
	trigger := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	r, err := svc.Create("0812-3456-789", trigger, "Tagihan April", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.PhoneNumber != "628123456789" {
		t.Fatalf("phone not normalized: %q", r.PhoneNumber)
	}
	if !r.Recurring || !r.TriggerAt.Equal(trigger) {
		t.Fatalf("unexpected reminder: %+v", r)
	}
	if _, ok := st.Get(r.ID); !ok {
		t.Fatalf("created reminder not pending")
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _ := newService(t)
	trigger := time.Now().Add(time.Hour)

	if _, err := svc.Create("abc", trigger, "x", false); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad phone: expected ErrInvalid, got %v", err)
	}
	if _, err := svc.Create("08123456789", trigger, "  ", false); !errors.Is(err, ErrInvalid) {
		t.Fatalf("blank message: expected ErrInvalid, got %v", err)
	}
	if _, err := svc.Create("08123456789", time.Time{}, "x", false); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero trigger: expected ErrInvalid, got %v", err)
	}
}

func TestEditOnlyTouchesGivenFields(t *testing.T) {
	svc, _ := newService(t)
	r, err := svc.Create("08123456789", time.Now().Add(time.Hour), "pesan awal", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	msg := "pesan baru"
	got, err := svc.Edit(r.ID, Update{Message: &msg})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.Message != msg {
		t.Fatalf("message not updated: %q", got.Message)
	}
	if got.PhoneNumber != r.PhoneNumber || !got.TriggerAt.Equal(r.TriggerAt) || got.Recurring != r.Recurring {
		t.Fatalf("untouched fields mutated: %+v", got)
	}
}

func TestEditNotPendingReturnsNotFound(t *testing.T) {
	svc, st := newService(t)
	r, err := svc.Create("08123456789", time.Now().Add(-time.Hour), "x", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := st.MarkSent(r.ID, time.Now()); !ok {
		t.Fatalf("MarkSent failed")
	}

	msg := "y"
	if _, err := svc.Edit(r.ID, Update{Message: &msg}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("editing a sent reminder: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Edit(99999, Update{Message: &msg}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("editing unknown ID: expected ErrNotFound, got %v", err)
	}
}

func TestEditLosingToMarkSentLeavesPendingEmpty(t *testing.T) {
	svc, st := newService(t)
	r, err := svc.Create("08123456789", time.Now().Add(-time.Hour), "x", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := st.MarkSent(r.ID, time.Now()); !ok {
		t.Fatalf("MarkSent failed")
	}

	msg := "y"
	if _, err := svc.Edit(r.ID, Update{Message: &msg}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := st.ListPending(); len(got) != 0 {
		t.Fatalf("edit must not resurrect a sent reminder: %+v", got)
	}
	if _, ok := st.GetSent(r.ID); !ok {
		t.Fatalf("sent record lost")
	}
}

func TestEditSent(t *testing.T) {
	svc, st := newService(t)
	r, err := svc.Create("08123456789", time.Now().Add(-time.Hour), "pesan awal", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sentAt := time.Now()
	if _, ok := st.MarkSent(r.ID, sentAt); !ok {
		t.Fatalf("MarkSent failed")
	}

	msg := "pesan terkoreksi"
	rec, err := svc.EditSent(r.ID, Update{Message: &msg})
	if err != nil {
		t.Fatalf("EditSent: %v", err)
	}
	if rec.Message != msg || !rec.SentAt.Equal(sentAt) {
		t.Fatalf("unexpected sent record: %+v", rec)
	}

	bad := " "
	if _, err := svc.EditSent(r.ID, Update{Message: &bad}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("blank message: expected ErrInvalid, got %v", err)
	}
	if _, err := svc.EditSent(99999, Update{Message: &msg}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ID: expected ErrNotFound, got %v", err)
	}
}

func TestRescheduleNowRoundTrip(t *testing.T) {
	svc, st := newService(t)
	r, err := svc.Create("08123456789", time.Now().Add(-time.Hour), "x", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := st.MarkSent(r.ID, time.Now()); !ok {
		t.Fatalf("MarkSent failed")
	}

	back, err := svc.RescheduleNow(r.ID)
	if err != nil {
		t.Fatalf("RescheduleNow: %v", err)
	}
	if back.ID != r.ID {
		t.Fatalf("RescheduleNow changed the ID: %d", back.ID)
	}
	if _, err := svc.GetSent(r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record must leave sent history")
	}
	if !svc.Delete(r.ID) {
		t.Fatalf("reminder must be deletable from pending again")
	}
}
