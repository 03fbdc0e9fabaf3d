package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"overlaycast/internal/api"
	"overlaycast/internal/daemon"
	"overlaycast/internal/journal"
	"overlaycast/internal/logging"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "Overlaycast"

const (
	defaultTailLimit = 200
	defaultTailWait  = time.Second
)

// Server serves the daemon's JSON-RPC service on a Unix socket that only
// the owning user can connect to.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer replaces any stale socket at path and registers the service.
// Nothing is accepted until Serve.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		rpc:      rpcServer,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
				logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting, drops open client connections and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale socket may block the next start"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun overlaycast stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	return s.logger
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = daemon.BuildAPIStatus(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) Overlays(_ OverlaysRequest, resp *OverlaysResponse) error {
	resp.Overlays = api.SummarizeSnapshots(s.daemon.Overlays())
	return nil
}

func (s *service) Describe(req DescribeRequest, resp *DescribeResponse) error {
	snap, err := s.daemon.Describe(req.Overlay)
	if err != nil {
		return err
	}
	resp.Overlay = api.FromSnapshot(snap)
	return nil
}

func (s *service) Send(req SendRequest, resp *SendResponse) error {
	if strings.TrimSpace(req.Overlay) == "" {
		return errors.New("overlay is required")
	}
	env, err := s.daemon.Send(s.ctx, req.Overlay, req.Type, req.ID, req.Payload)
	if err != nil {
		return err
	}
	snap, err := s.daemon.Describe(env.Channel)
	if err != nil {
		return err
	}
	resp.EventID = env.ID
	resp.Channel = env.Channel
	resp.Overlay = api.FromSnapshot(snap)
	s.log().Info("event sent via IPC",
		logging.String(logging.FieldEventType, "ipc_send"),
		logging.String(logging.FieldChannel, env.Channel),
		logging.String(logging.FieldEventID, env.ID),
		logging.String("type", env.Type))
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	entries, stats, err := s.daemon.Journal(s.ctx, journal.Filter{
		Channel:    strings.TrimSpace(req.Channel),
		Type:       strings.TrimSpace(req.Type),
		FailedOnly: req.FailedOnly,
		Limit:      req.Limit,
	})
	if err != nil {
		return err
	}
	resp.Entries = api.FromJournalEntries(entries)
	resp.Stats = api.FromJournalStats(stats)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	hub := s.daemon.LogStream()
	if hub == nil {
		return nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTailLimit
	}

	var (
		events []logging.LogEvent
		next   uint64
	)
	if req.Since == 0 && !req.Follow {
		events, next = hub.Tail(limit)
	} else {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 {
			wait = defaultTailWait
		}
		ctx, cancel := context.WithTimeout(s.ctx, wait)
		defer cancel()
		var err error
		events, next, err = hub.Fetch(ctx, req.Since, limit, req.Follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if next < req.Since {
			next = req.Since
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if req.Component != "" && !strings.EqualFold(req.Component, evt.Component) {
			continue
		}
		if req.Channel != "" && req.Channel != evt.Channel {
			continue
		}
		filtered = append(filtered, evt)
	}
	resp.Events = api.FromLogEvents(filtered)
	resp.Next = next
	return nil
}
