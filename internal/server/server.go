// Package server exposes screening and the call log over HTTP and
// WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcliao/call-screen/internal/calllog"
	"github.com/rcliao/call-screen/internal/display"
	"github.com/rcliao/call-screen/internal/model"
	"github.com/rcliao/call-screen/internal/phone"
	"github.com/rcliao/call-screen/internal/screening"
	"github.com/rcliao/call-screen/internal/store"
)

const (
	writeWait       = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 16
)

// Screener decides incoming calls.
type Screener interface {
	ScreenCall(ctx context.Context, ev model.IncomingCallEvent) screening.Result
}

// Server routes HTTP requests to the engine, call log, presenter and
// reputation store.
type Server struct {
	screener  Screener
	stream    *calllog.Stream
	presenter *display.Presenter
	callers   store.Reputation
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
}

// New builds a Server. A nil logger uses slog.Default().
func New(screener Screener, stream *calllog.Stream, presenter *display.Presenter, callers store.Reputation, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		screener:  screener,
		stream:    stream,
		presenter: presenter,
		callers:   callers,
		logger:    logger,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /screen", s.handleScreen)
	s.mux.HandleFunc("GET /calls", s.handleCalls)
	s.mux.HandleFunc("DELETE /calls", s.handleClearCalls)
	s.mux.HandleFunc("GET /calls/ws", s.handleCallsWS)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("PUT /state/permission", s.handlePermission)
	s.mux.HandleFunc("GET /callers", s.handleListCallers)
	s.mux.HandleFunc("GET /callers/{number}", s.handleGetCaller)
	s.mux.HandleFunc("PUT /callers/{number}", s.handlePutCaller)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type screenResponse struct {
	Disposition model.Disposition   `json:"disposition"`
	Response    model.CallResponse  `json:"response"`
	Entry       *model.CallLogEntry `json:"entry,omitempty"`
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var ev model.IncomingCallEvent
	if err := decodeBody(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res := s.screener.ScreenCall(r.Context(), ev)
	writeJSON(w, http.StatusOK, screenResponse{
		Disposition: res.Disposition,
		Response:    res.Disposition.Response(),
		Entry:       res.Entry,
	})
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stream.Snapshot())
}

func (s *Server) handleClearCalls(w http.ResponseWriter, r *http.Request) {
	if err := s.stream.Clear(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCallsWS streams one JSON snapshot per publish, starting with the
// current one, until the client goes away.
func (s *Server) handleCallsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.stream.Subscribe()
	defer sub.Close()

	s.logger.Debug("call log subscriber connected", "subscription", sub.ID, "remote", r.RemoteAddr)

	// The feed is read-only; reading only detects the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "call log closed"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug("call log subscriber write failed", "subscription", sub.ID, "error", err)
				return
			}
		case <-gone:
			s.logger.Debug("call log subscriber disconnected", "subscription", sub.ID)
			return
		}
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.presenter.Current())
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Granted bool `json:"granted"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.presenter.SetPermission(body.Granted)
	writeJSON(w, http.StatusOK, s.presenter.Current())
}

func (s *Server) handleListCallers(w http.ResponseWriter, r *http.Request) {
	callers, err := s.callers.ListAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if callers == nil {
		callers = []model.CallerRecord{}
	}
	writeJSON(w, http.StatusOK, callers)
}

func (s *Server) handleGetCaller(w http.ResponseWriter, r *http.Request) {
	number := phone.NormalizeString(r.PathValue("number"))
	rec, err := s.callers.Lookup(r.Context(), number)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutCaller(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    *string `json:"name"`
		Company *string `json:"company"`
		IsSpam  bool    `json:"is_spam"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec := model.CallerRecord{
		PhoneNumber: phone.NormalizeString(r.PathValue("number")),
		Name:        body.Name,
		Company:     body.Company,
		IsSpam:      body.IsSpam,
	}
	if rec.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, errors.New("phone number is required"))
		return
	}
	if err := s.callers.Upsert(r.Context(), rec); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
