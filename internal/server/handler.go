package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abelbrown/lineup/internal/logging"
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/store"
)

// maxBody caps request bodies.
const maxBody = 8 << 20

// ViewRequest is the body of POST /view.
type ViewRequest struct {
	Indices []int `json:"indices"`
}

// ViewResponse is the reply to POST /view.
type ViewResponse struct {
	Rows []map[string]any `json:"rows"`
}

// CountResponse is the reply to GET /count.
type CountResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler routes:
//
//	POST /sort          RankingDump -> ranking.Result
//	POST /view          ViewRequest -> ViewResponse
//	GET  /count         CountResponse
//	GET  /dumps         []store.DumpInfo
//	GET  /dumps/{name}  RankingDump
//	PUT  /dumps/{name}  RankingDump
func NewHandler(b *Backend) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sort", func(w http.ResponseWriter, r *http.Request) {
		var d model.RankingDump
		if !decode(w, r, &d) {
			return
		}
		res, err := b.Sort(r.Context(), d)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
	mux.HandleFunc("POST /view", func(w http.ResponseWriter, r *http.Request) {
		var req ViewRequest
		if !decode(w, r, &req) {
			return
		}
		rows, err := b.View(r.Context(), req.Indices)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ViewResponse{Rows: rows})
	})
	mux.HandleFunc("GET /count", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, CountResponse{Count: b.Count()})
	})
	mux.HandleFunc("GET /dumps", func(w http.ResponseWriter, r *http.Request) {
		infos, err := b.Store().Dumps()
		if err != nil {
			writeError(w, err)
			return
		}
		if infos == nil {
			infos = []store.DumpInfo{}
		}
		writeJSON(w, http.StatusOK, infos)
	})
	mux.HandleFunc("GET /dumps/{name}", func(w http.ResponseWriter, r *http.Request) {
		d, err := b.Store().LoadDump(r.PathValue("name"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	})
	mux.HandleFunc("PUT /dumps/{name}", func(w http.ResponseWriter, r *http.Request) {
		var d model.RankingDump
		if !decode(w, r, &d) {
			return
		}
		if err := b.Store().SaveDump(r.PathValue("name"), d); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return logRequests(mux)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode body: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrBadDump):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// Serve runs an HTTP server for h on addr until ctx ends, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logging.Info("Server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Info("Server stopped", "addr", addr)
	return nil
}
