package handlers

import (
	"context"
	"net/http"

	"github.com/jmartynas/workos-auth/respond"
)

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type statusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Health is the liveness check: returns 200 if the process is running.
func Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Ready is the readiness check: returns 200 when every named dependency
// answers a ping, 503 otherwise. No dependencies means in-memory storage.
func Ready(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for name, p := range deps {
			if p == nil {
				respond.JSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Reason: "no " + name})
				return
			}
			if err := p.PingContext(r.Context()); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Reason: name + " ping failed"})
				return
			}
		}
		respond.JSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}
