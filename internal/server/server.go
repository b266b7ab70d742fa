// Package server exposes the capture agent over a local HTTP surface: the
// in-page shim POSTs interaction events, the harness starts and ends
// sessions, and finished recordings are fetched through short-lived
// download URLs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"github.com/vetsimlabs/vetrec/internal/recorder"
	"github.com/vetsimlabs/vetrec/internal/storage"
	"go.uber.org/zap"
)

// SessionReader is the read side of the storage contract the HTTP surface
// needs.
type SessionReader interface {
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*storage.SessionData, error)
}

// Server routes HTTP traffic to the recorder and storage
type Server struct {
	rec     *recorder.Recorder
	reader  SessionReader
	backend string
	addr    string
	grace   time.Duration
	clock   clock.Clock
	log     *zap.SugaredLogger

	mu        sync.Mutex
	downloads map[string]download

	httpServer *http.Server
}

// download is a finished session payload held until its URL expires
type download struct {
	filename string
	payload  []byte
}

// New builds a server. reader may be the storage manager or nil when the
// recorder runs memory-only.
func New(rec *recorder.Recorder, reader SessionReader, backend, addr string, grace time.Duration, clk clock.Clock, log *zap.SugaredLogger) *Server {
	return &Server{
		rec:       rec,
		reader:    reader,
		backend:   backend,
		addr:      addr,
		grace:     grace,
		clock:     clk,
		log:       log,
		downloads: make(map[string]download),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /sessions/start", s.handleStart)
	mux.HandleFunc("POST /sessions/end", s.handleEnd)
	mux.HandleFunc("POST /events", s.handleEvents)
	mux.HandleFunc("GET /sessions", s.handleList)
	mux.HandleFunc("GET /sessions/{id}", s.handleGet)
	mux.HandleFunc("GET /download/{token}", s.handleDownload)
	return mux
}

// Handler exposes the mux for tests
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var scenario domain.Scenario
	if err := json.NewDecoder(r.Body).Decode(&scenario); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid scenario payload")
		return
	}
	if scenario.ID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SCENARIO_ID", "scenario id is required")
		return
	}

	sessionID, err := s.rec.Start(r.Context(), scenario)
	if err != nil {
		if errors.Is(err, recorder.ErrFinalizing) {
			writeError(w, http.StatusConflict, "FINALIZING", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "START_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

// eventBatch mirrors the shim's POST body; batching keeps mousemove
// traffic off the per-request overhead.
type eventBatch struct {
	Events []recorder.RawEvent `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var batch eventBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid event batch")
		return
	}
	if len(batch.Events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for _, raw := range batch.Events {
		if err := s.rec.HandleEvent(r.Context(), raw); err != nil {
			if errors.Is(err, recorder.ErrNoActiveSession) {
				writeError(w, http.StatusConflict, "NO_ACTIVE_SESSION", "start a session before sending events")
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// endResponse is the transport payload handed back to the harness
type endResponse struct {
	SessionID   string            `json:"sessionId"`
	Filename    string            `json:"filename"`
	Evaluation  domain.Evaluation `json:"evaluation"`
	DownloadURL string            `json:"downloadUrl"`
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	res, err := s.rec.End(r.Context())
	if err != nil {
		if errors.Is(err, recorder.ErrNoActiveSession) {
			writeError(w, http.StatusConflict, "NO_ACTIVE_SESSION", "no session to end")
			return
		}
		// Finalize failed but the payload still exists; surface the
		// degraded result rather than losing the recording.
		s.log.Warnw("session ended with storage error", "error", err)
	}
	if res == nil {
		writeError(w, http.StatusInternalServerError, "END_FAILED", "no result produced")
		return
	}

	writeJSON(w, http.StatusOK, endResponse{
		SessionID:   res.SessionID,
		Filename:    res.Filename,
		Evaluation:  res.Evaluation,
		DownloadURL: s.registerDownload(res.Filename, res.Payload),
	})
}

// registerDownload parks the payload under a one-time token that is revoked
// after the grace period so finished sessions do not accumulate in memory.
func (s *Server) registerDownload(filename string, payload []byte) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.downloads[token] = download{filename: filename, payload: payload}
	s.mu.Unlock()

	s.clock.AfterFunc(s.grace, func() {
		s.mu.Lock()
		delete(s.downloads, token)
		s.mu.Unlock()
	})
	return "/download/" + token
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	s.mu.Lock()
	dl, ok := s.downloads[token]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "DOWNLOAD_EXPIRED", "download URL expired or unknown")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.filename))
	w.Write(dl.payload)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeJSON(w, http.StatusOK, []domain.Session{})
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		fmt.Sscanf(q, "%d", &limit)
	}
	sessions, err := s.reader.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "persistence disabled")
		return
	}
	data, err := s.reader.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "GET_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("capture agent listening", "addr", s.addr, "backend", s.backend)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
