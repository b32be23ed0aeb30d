package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/metrics"
	"github.com/adamgarcia4/goLearning/seqcast/multicast"
	"github.com/adamgarcia4/goLearning/seqcast/node"
	"github.com/adamgarcia4/goLearning/seqcast/wire"
)

// Node is the part of a node the admin API serves.
type Node interface {
	Status() node.Status
	Journal() *node.Journal
	Metrics() *metrics.Metrics
	Submit(ctx context.Context, text string) (multicast.Message, error)
}

// SubmitRequest is the body of POST /messages.
type SubmitRequest struct {
	Text string `json:"text"`
}

// SubmitResponse echoes the message handed to the relay.
type SubmitResponse struct {
	Payload  string `json:"payload"`
	Identity string `json:"identity"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	node.Status
	Metrics metrics.Snapshot `json:"metrics"`
}

// JournalLine is one entry of GET /journal/{column}.
type JournalLine struct {
	node.JournalEntry
	Line string `json:"line"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the admin endpoints of n into a router:
//
//	GET  /health
//	GET  /status
//	GET  /journal/{column}   sent | received | ready
//	POST /messages           {"text": "..."}
func NewServer(n Node) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st := n.Status()
		writeJSON(w, http.StatusOK, StatusResponse{
			Status:  st,
			Metrics: n.Metrics().Snapshot(st.NodeID),
		})
	})

	r.Get("/journal/{column}", func(w http.ResponseWriter, r *http.Request) {
		column, err := node.ParseColumn(chi.URLParam(r, "column"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		entries := n.Journal().Entries(column)
		lines := make([]JournalLine, len(entries))
		for i, e := range entries {
			lines[i] = JournalLine{JournalEntry: e, Line: e.Format(column)}
		}
		writeJSON(w, http.StatusOK, lines)
	})

	r.Post("/messages", func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4*wire.MaxFrameSize)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid body: %v", err)})
			return
		}

		m, err := n.Submit(r.Context(), req.Text)
		if err != nil {
			writeJSON(w, submitStatus(err), errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, SubmitResponse{Payload: m.Payload, Identity: string(m.Identity())})
	})

	return r
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, wire.ErrFrameTooLarge), errors.Is(err, wire.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, node.ErrNotRunning), errors.Is(err, node.ErrNoIngress):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("admin api: encode response: %v", err)
	}
}

// Serve runs the admin API for n on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, n Node) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewServer(n),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
