package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"payremind/internal/gateway"
	"payremind/internal/reminders"
)

// reminderRequest is the wire shape the original frontend sends: a calendar
// date plus a wall-clock time, interpreted in the service timezone.
type reminderRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	PaymentDate  string `json:"paymentDate"`  // "2006-01-02"
	ReminderTime string `json:"reminderTime"` // "15:04" or "15:04:05"
	Message      string `json:"message"`
	Recurring    *bool  `json:"recurring"`
}

func (r reminderRequest) recurring() bool {
	return r.Recurring != nil && *r.Recurring
}

func (s *Server) parseTrigger(date, clock string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, date+"T"+clock, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("paymentDate/reminderTime tidak valid")
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	triggerAt, err := s.parseTrigger(req.PaymentDate, req.ReminderTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rem, err := s.svc.Create(req.PhoneNumber, triggerAt, req.Message, req.recurring())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Pengingat berhasil dijadwalkan",
		"reminder": rem,
	})
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	all := s.svc.ListPending()
	page, slice, totalPages := paginate(r, len(all))
	writeJSON(w, http.StatusOK, map[string]any{
		"page":       page,
		"totalPages": totalPages,
		"reminders":  all[slice[0]:slice[1]],
	})
}

// updateFromRequest maps the partial wire shape onto the service's Update:
// empty fields mean "keep current value".
func (s *Server) updateFromRequest(req reminderRequest) (reminders.Update, error) {
	up := reminders.Update{Recurring: req.Recurring}
	if req.PhoneNumber != "" {
		up.PhoneNumber = &req.PhoneNumber
	}
	if req.Message != "" {
		up.Message = &req.Message
	}
	if req.PaymentDate != "" || req.ReminderTime != "" {
		triggerAt, err := s.parseTrigger(req.PaymentDate, req.ReminderTime)
		if err != nil {
			return reminders.Update{}, err
		}
		up.TriggerAt = &triggerAt
	}
	return up, nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	up, err := s.updateFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rem, err := s.svc.Edit(id, up)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Pengingat berhasil diperbarui",
		"reminder": rem,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.svc.Delete(id) {
		writeError(w, http.StatusNotFound, reminders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Pengingat berhasil dihapus"})
}

func (s *Server) handleListSent(w http.ResponseWriter, r *http.Request) {
	all := s.svc.ListSent()
	page, slice, totalPages := paginate(r, len(all))
	writeJSON(w, http.StatusOK, map[string]any{
		"page":          page,
		"totalPages":    totalPages,
		"sentReminders": all[slice[0]:slice[1]],
	})
}

func (s *Server) handleGetSent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.GetSent(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sentReminder": rec})
}

func (s *Server) handleUpdateSent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	up, err := s.updateFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.svc.EditSent(id, up)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Riwayat pengingat berhasil diperbarui",
		"sentReminder": rec,
	})
}

func (s *Server) handleDeleteSent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.svc.DeleteSent(id) {
		writeError(w, http.StatusNotFound, reminders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Riwayat pengingat berhasil dihapus"})
}

func (s *Server) handleRescheduleNow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rem, err := s.svc.RescheduleNow(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Pengingat dijadwalkan ulang",
		"reminder": rem,
	})
}

func (s *Server) handleListDead(w http.ResponseWriter, r *http.Request) {
	all := s.svc.ListDead()
	page, slice, totalPages := paginate(r, len(all))
	writeJSON(w, http.StatusOK, map[string]any{
		"page":          page,
		"totalPages":    totalPages,
		"deadReminders": all[slice[0]:slice[1]],
	})
}

func (s *Server) handleGatewayStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.sender.State()
	body := map[string]any{"state": string(state)}
	// Surface the pairing artifact while the session still needs it, so a
	// client can complete the login without tailing the logs.
	if state != gateway.StateReady {
		if code := s.sender.Pairing(); code != "" {
			body["pairingCode"] = code
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// paginate mirrors the original API: 1-based page, default limit 5, and an
// out-of-range page simply yields an empty slice.
func paginate(r *http.Request, total int) (page int, bounds [2]int, totalPages int) {
	page = queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 5)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 5
	}
	totalPages = (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return page, [2]int{start, end}, totalPages
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("id tidak valid"))
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reminders.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, reminders.ErrInvalid):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"message": err.Error()})
}
