package member

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitlink/fitlink-backend/internal/roles"
	"github.com/fitlink/fitlink-backend/internal/training"
	"github.com/fitlink/fitlink-backend/internal/utils"
)

type fakeSchedules struct {
	out      []training.Schedule
	err      error
	memberID string
	from, to time.Time
}

func (f *fakeSchedules) MemberSchedules(ctx context.Context, memberID string, from, to time.Time) ([]training.Schedule, error) {
	f.memberID, f.from, f.to = memberID, from, to
	return f.out, f.err
}

func serveSchedule(store *fakeSchedules, target string, withPrincipal bool) *httptest.ResponseRecorder {
	h := &handler{schedules: store, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if withPrincipal {
		req = req.WithContext(utils.WithPrincipal(req.Context(), "m1", roles.Member))
	}
	rec := httptest.NewRecorder()
	h.MySchedule(rec, req)
	return rec
}

func TestMySchedule(t *testing.T) {
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	store := &fakeSchedules{out: []training.Schedule{{ID: "s1", MemberID: "m1", StartTime: start, EndTime: start.Add(time.Hour)}}}

	rec := serveSchedule(store, "/my-schedule", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []training.Schedule
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("unexpected schedules: %+v", got)
	}
	if store.memberID != "m1" {
		t.Errorf("expected lookup for m1, got %q", store.memberID)
	}
	if !store.from.IsZero() || !store.to.IsZero() {
		t.Errorf("expected open range, got [%v, %v)", store.from, store.to)
	}
}

func TestMyScheduleEmptyIsArray(t *testing.T) {
	rec := serveSchedule(&fakeSchedules{}, "/my-schedule", true)
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestMyScheduleRange(t *testing.T) {
	store := &fakeSchedules{}
	rec := serveSchedule(store, "/my-schedule?from=2025-03-01&to=2025-03-31", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	wantFrom := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if !store.from.Equal(wantFrom) || !store.to.Equal(wantTo) {
		t.Errorf("expected [%v, %v), got [%v, %v)", wantFrom, wantTo, store.from, store.to)
	}

	rec = serveSchedule(store, "/my-schedule?to=2025-03-05T09:00:00Z", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if want := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC); !store.to.Equal(want) {
		t.Errorf("expected to=%v, got %v", want, store.to)
	}
}

func TestMyScheduleBadRequests(t *testing.T) {
	for _, target := range []string{
		"/my-schedule?from=yesterday",
		"/my-schedule?from=2025-03-10&to=2025-03-01",
		"/my-schedule?from=2025-03-10T00:00:00Z&to=2025-03-10T00:00:00Z",
	} {
		rec := serveSchedule(&fakeSchedules{}, target, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestMyScheduleFailures(t *testing.T) {
	rec := serveSchedule(&fakeSchedules{}, "/my-schedule", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without principal, got %d", rec.Code)
	}

	rec = serveSchedule(&fakeSchedules{err: errors.New("db down")}, "/my-schedule", true)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
