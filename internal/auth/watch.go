package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fitlink/fitlink-backend/internal/guard"
	"github.com/fitlink/fitlink-backend/internal/middleware"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

const heartbeatInterval = 25 * time.Second

type watchEvent struct {
	Phase    string `json:"phase"`
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`
	Decision string `json:"decision"`
	Redirect string `json:"redirect,omitempty"`
}

// Watch keeps a guard mounted for ?path= and ?roles= and streams every
// decision change as a server-sent event until the client disconnects.
func (h *handler) Watch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, ok := SafeNext(q.Get("path"))
	if !ok {
		path = "/"
	}
	allowed := roles.ParseSet(q.Get("roles"))

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	g := guard.New(middleware.AuthSession(r.Context()), allowed, path, h.Guard)
	g.Mount(r.Context())
	defer g.Unmount()

	send := func() error {
		st := g.State()
		d := g.Decision()
		ev := watchEvent{
			Phase:    st.Phase.String(),
			UserID:   st.UserID,
			Role:     string(st.Role),
			Decision: d.Kind.String(),
		}
		if d.Kind == guard.Redirect {
			ev.Redirect = middleware.RedirectTarget(d)
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: decision\ndata: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-g.Changes():
			if err := send(); err != nil {
				h.Logger.Debug("watch stream closed", "error", err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
