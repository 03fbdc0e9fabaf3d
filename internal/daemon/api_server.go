package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"overlaycast/internal/api"
	"overlaycast/internal/config"
	"overlaycast/internal/journal"
	"overlaycast/internal/logging"
	"overlaycast/internal/overlay"
	"overlaycast/internal/protocol"
)

const (
	defaultLogLimit   = 200
	sseRetryMillis    = 2000
	maxPlayerEventLen = 64 << 10
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken, cfg.Metrics.Enabled),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string, withMetrics bool) http.Handler {
	r := mux.NewRouter()
	r.Use(authMiddleware(token))

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/overlays", s.handleOverlays).Methods(http.MethodGet)
	r.HandleFunc("/api/overlays/{name}", s.handleOverlay).Methods(http.MethodGet)
	r.HandleFunc("/api/overlays/{name}/events", s.handleOverlayEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/overlays/{name}/player", s.handlePlayerCommands).Methods(http.MethodGet)
	r.HandleFunc("/api/overlays/{name}/player", s.handlePlayerEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/journal", s.handleJournal).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	if withMetrics {
		r.Handle("/metrics", s.daemon.Metrics().Handler()).Methods(http.MethodGet)
	}
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

const apiShutdownTimeout = 5 * time.Second

// start binds the listener synchronously so bind errors surface to the
// caller, then serves until ctx ends or stop is called.
func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	go func() {
		err := s.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	context.AfterFunc(ctx, s.shutdown)
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	s.shutdown()
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"running": s.daemon.Running(),
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, BuildAPIStatus(s.daemon.Status(r.Context())))
}

// BuildAPIStatus converts a daemon status to its API representation.
func BuildAPIStatus(status Status) api.DaemonStatus {
	payload := api.DaemonStatus{
		Running:        status.Running,
		PID:            status.PID,
		SessionID:      status.SessionID,
		LockFilePath:   status.LockFilePath,
		JournalPath:    status.JournalPath,
		APIAddress:     status.APIAddress,
		Director:       api.FromDirectorStatus(status.Director),
		Overlays:       api.SummarizeSnapshots(status.Overlays),
		JournalDropped: status.Dropped,
		Dependencies:   status.Dependencies,
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	for _, snap := range status.Overlays {
		if snap.Visible {
			payload.VisibleCount++
		}
	}
	return payload
}

func (s *apiServer) handleOverlays(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.OverlayListResponse{
		Overlays: api.SummarizeSnapshots(s.daemon.Overlays()),
	})
}

func (s *apiServer) handleOverlay(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.Describe(mux.Vars(r)["name"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.OverlayResponse{Overlay: api.FromSnapshot(snap)})
}

func (s *apiServer) handleOverlayEvents(w http.ResponseWriter, r *http.Request) {
	machine, err := s.daemon.Manager().Resolve(mux.Vars(r)["name"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	stream, ok := s.openStream(w)
	if !ok {
		return
	}
	updates := machine.Watch(r.Context())
	for snap := range updates {
		if err := stream.send("state", strconv.FormatUint(snap.Version, 10), api.FromSnapshot(snap)); err != nil {
			s.logger.Debug("overlay stream closed", logging.String(logging.FieldOverlay, machine.Name()), logging.Error(err))
			return
		}
	}
}

func (s *apiServer) handlePlayerCommands(w http.ResponseWriter, r *http.Request) {
	machine, err := s.daemon.Manager().Resolve(mux.Vars(r)["name"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	stream, ok := s.openStream(w)
	if !ok {
		return
	}
	commands := machine.PlayerCommands()
	for {
		select {
		case <-r.Context().Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := stream.send("player", "", cmd); err != nil {
				s.logger.Debug("player stream closed", logging.String(logging.FieldOverlay, machine.Name()), logging.Error(err))
				return
			}
		}
	}
}

func (s *apiServer) handlePlayerEvent(w http.ResponseWriter, r *http.Request) {
	machine, err := s.daemon.Manager().Resolve(mux.Vars(r)["name"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	var evt protocol.PlayerEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlayerEventLen))
	if err := dec.Decode(&evt); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid player event: "+err.Error())
		return
	}
	if err := machine.HandlePlayerEvent(evt); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleJournal(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := journal.Filter{
		Channel:    strings.TrimSpace(query.Get("channel")),
		Type:       strings.TrimSpace(query.Get("type")),
		FailedOnly: isTruthy(query.Get("failed")),
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if value := query.Get("since"); value != "" {
		since, err := time.Parse(time.RFC3339, value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Since = since
	}
	entries, stats, err := s.daemon.Journal(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JournalResponse{
		Entries: api.FromJournalEntries(entries),
		Stats:   api.FromJournalStats(stats),
	})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := isTruthy(query.Get("follow"))
	tail := isTruthy(query.Get("tail"))
	component := strings.TrimSpace(query.Get("component"))
	channelName := strings.TrimSpace(query.Get("channel"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		var err error
		events, next, err = hub.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if channelName != "" && channelName != evt.Channel {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{
		Events: api.FromLogEvents(filtered),
		Next:   next,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, overlay.ErrUnknownOverlay):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrUnsupportedEvent),
		errors.Is(err, protocol.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrNotVisible),
		errors.Is(err, protocol.ErrNoMedia),
		errors.Is(err, protocol.ErrNoChapter):
		return http.StatusConflict
	case errors.Is(err, overlay.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	s.writeError(w, statusFor(err), err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func isTruthy(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}
