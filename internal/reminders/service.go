// Package reminders is the capability exposed to the API layer: create,
// edit and delete pending reminders, read sent history, and move a sent
// record back to pending. Validation happens here; malformed input never
// reaches the store.
package reminders

import (
	"errors"
	"fmt"
	"time"

	"payremind/internal/store"
	logx "payremind/pkg/logx"
)

var (
	ErrInvalid  = errors.New("invalid reminder")
	ErrNotFound = store.ErrNotFound
)

type Service struct {
	store       *store.Store
	log         logx.Logger
	countryCode string
}

func New(st *store.Store, countryCode string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if countryCode == "" {
		countryCode = defaultCountryCode
	}
	return &Service{store: st, log: log, countryCode: countryCode}
}

// Create validates and schedules a new pending reminder.
func (s *Service) Create(phone string, triggerAt time.Time, message string, recurring bool) (store.Reminder, error) {
	normalized, err := NormalizePhone(phone, s.countryCode)
	if err != nil {
		return store.Reminder{}, err
	}
	if !ValidMessage(message) {
		return store.Reminder{}, fmt.Errorf("%w: message must not be empty", ErrInvalid)
	}
	if triggerAt.IsZero() {
		return store.Reminder{}, fmt.Errorf("%w: trigger time is required", ErrInvalid)
	}

	r := store.Reminder{
		ID:          s.store.NextID(),
		PhoneNumber: normalized,
		TriggerAt:   triggerAt,
		Message:     message,
		Recurring:   recurring,
	}
	s.store.Put(r)
	s.log.Info("reminder scheduled",
		logx.Int64("id", r.ID),
		logx.Time("trigger_at", r.TriggerAt),
		logx.Bool("recurring", r.Recurring))
	return r, nil
}

// Update carries the editable fields; nil means "keep current value".
type Update struct {
	PhoneNumber *string
	TriggerAt   *time.Time
	Message     *string
	Recurring   *bool
}

// validate normalizes and checks the fields carried by the update. The
// returned Update holds the normalized phone number.
func (s *Service) validate(up Update) (Update, error) {
	if up.PhoneNumber != nil {
		normalized, err := NormalizePhone(*up.PhoneNumber, s.countryCode)
		if err != nil {
			return Update{}, err
		}
		up.PhoneNumber = &normalized
	}
	if up.Message != nil && !ValidMessage(*up.Message) {
		return Update{}, fmt.Errorf("%w: message must not be empty", ErrInvalid)
	}
	if up.TriggerAt != nil && up.TriggerAt.IsZero() {
		return Update{}, fmt.Errorf("%w: trigger time is required", ErrInvalid)
	}
	return up, nil
}

func (up Update) apply(r *store.Reminder) {
	if up.PhoneNumber != nil {
		r.PhoneNumber = *up.PhoneNumber
	}
	if up.Message != nil {
		r.Message = *up.Message
	}
	if up.TriggerAt != nil {
		r.TriggerAt = *up.TriggerAt
	}
	if up.Recurring != nil {
		r.Recurring = *up.Recurring
	}
}

// Edit mutates a pending reminder. The mutation runs inside a single store
// operation, so a scan marking the reminder sent at the same moment can never
// see it re-enter the pending collection. Editing a reminder that already
// left pending returns ErrNotFound.
func (s *Service) Edit(id int64, up Update) (store.Reminder, error) {
	up, err := s.validate(up)
	if err != nil {
		return store.Reminder{}, err
	}

	r, ok := s.store.Update(id, func(r *store.Reminder) { up.apply(r) })
	if !ok {
		return store.Reminder{}, ErrNotFound
	}
	s.log.Info("reminder updated", logx.Int64("id", r.ID))
	return r, nil
}

// EditSent corrects the details of a record already in sent history. SentAt
// is not editable.
func (s *Service) EditSent(id int64, up Update) (store.SentRecord, error) {
	up, err := s.validate(up)
	if err != nil {
		return store.SentRecord{}, err
	}

	rec, ok := s.store.UpdateSent(id, func(rec *store.SentRecord) { up.apply(&rec.Reminder) })
	if !ok {
		return store.SentRecord{}, ErrNotFound
	}
	s.log.Info("sent record updated", logx.Int64("id", rec.ID))
	return rec, nil
}

// Delete removes a pending reminder.
func (s *Service) Delete(id int64) bool {
	ok := s.store.Remove(id)
	if ok {
		s.log.Info("reminder deleted", logx.Int64("id", id))
	}
	return ok
}

// DeleteSent removes a sent record from history.
func (s *Service) DeleteSent(id int64) bool {
	ok := s.store.RemoveSent(id)
	if ok {
		s.log.Info("sent record deleted", logx.Int64("id", id))
	}
	return ok
}

func (s *Service) ListPending() []store.Reminder { return s.store.ListPending() }
func (s *Service) ListSent() []store.SentRecord  { return s.store.ListSent() }
func (s *Service) ListDead() []store.DeadRecord  { return s.store.ListDead() }

func (s *Service) GetSent(id int64) (store.SentRecord, error) {
	rec, ok := s.store.GetSent(id)
	if !ok {
		return store.SentRecord{}, ErrNotFound
	}
	return rec, nil
}

// RescheduleNow moves a sent record back to pending immediately, distinct
// from the automatic month rollover of recurring reminders.
func (s *Service) RescheduleNow(sentID int64) (store.Reminder, error) {
	r, ok := s.store.RescheduleNow(sentID)
	if !ok {
		return store.Reminder{}, ErrNotFound
	}
	s.log.Info("sent reminder moved back to pending", logx.Int64("id", r.ID))
	return r, nil
}
