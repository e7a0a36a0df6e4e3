package member

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fitlink/fitlink-backend/internal/training"
	"github.com/fitlink/fitlink-backend/internal/utils"
)

type ScheduleStore interface {
	MemberSchedules(ctx context.Context, memberID string, from, to time.Time) ([]training.Schedule, error)
}

var errBadRange = errors.New("from must be before to")

type handler struct {
	schedules ScheduleStore
	logger    *slog.Logger
}

// MySchedule returns the caller's sessions ordered by start time. Optional
// from and to bound the start time and accept RFC 3339 or YYYY-MM-DD; a
// date-only to includes that whole day.
func (h *handler) MySchedule(w http.ResponseWriter, r *http.Request) {
	memberID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return
	}

	from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "Invalid date range: "+err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.schedules.MemberSchedules(r.Context(), memberID, from, to)
	if err != nil {
		h.logger.Error("schedule lookup failed", "member_id", memberID, "error", err)
		http.Error(w, "Failed to fetch schedule", http.StatusInternalServerError)
		return
	}
	if out == nil {
		out = []training.Schedule{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	if fromStr != "" {
		if from, _, err = parseBound(fromStr); err != nil {
			return
		}
	}
	if toStr != "" {
		var dateOnly bool
		if to, dateOnly, err = parseBound(toStr); err != nil {
			return
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1)
		}
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		err = errBadRange
	}
	return
}

func parseBound(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
