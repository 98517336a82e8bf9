// Package server runs the TCP and UDP listeners that receive tracker
// frames.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gpsgateway/internal/cache"
	"gpsgateway/internal/command"
	"gpsgateway/internal/core/model"
	"gpsgateway/internal/session"
)

// Presence mirrors session bindings into a shared cache.
type Presence interface {
	MarkOnline(ctx context.Context, p cache.Presence, ttl time.Duration) error
	MarkOffline(ctx context.Context, deviceID string) error
}

type TCPConfig struct {
	Addr          string
	Ack           string // written with a trailing \r\n; empty disables acks
	MaxFrameBytes int
	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
}

type TCPServer struct {
	cfg      TCPConfig
	handler  *FrameHandler
	registry *session.Registry
	queue    *command.Queue
	presence Presence
	log      zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewTCPServer(cfg TCPConfig, handler *FrameHandler, registry *session.Registry, queue *command.Queue, log zerolog.Logger) *TCPServer {
	return &TCPServer{
		cfg:      cfg,
		handler:  handler,
		registry: registry,
		queue:    queue,
		log:      log.With().Str("transport", "tcp").Logger(),
		conns:    make(map[net.Conn]struct{}),
		stopped:  make(chan struct{}),
	}
}

// SetPresence enables presence tracking. Call before Start.
func (s *TCPServer) SetPresence(p Presence) {
	s.presence = p
}

// Start binds the listener and serves connections until ctx is cancelled
// or Stop is called.
func (s *TCPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("TCP server listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections(ctx, ln)
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to unbind and exit.
func (s *TCPServer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.conns = nil
		s.mu.Unlock()
		close(s.stopped)

		s.wg.Wait()
		s.log.Info().Msg("TCP server stopped")
	})
}

func (s *TCPServer) acceptConnections(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("error accepting connection")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.handler.metrics.Connections.Inc()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// conns is nilled once Stop has run
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	h := session.NewHandle(conn, s.cfg.WriteTimeout)
	defer h.Close()

	remote := conn.RemoteAddr().String()
	log := s.log.With().Str("remote", remote).Logger()
	log.Debug().Msg("new connection")

	// a connection normally carries one device, but nothing stops it from
	// reporting for several
	bound := make(map[string]struct{})
	defer s.unbindAll(bound, h, log)

	framer := NewFramer(conn, s.cfg.MaxFrameBytes)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		frame, err := framer.Next()
		if errors.Is(err, ErrFrameTooLong) {
			s.handler.RejectOversized(model.TransportTCP, remote)
			continue
		}
		if err != nil {
			s.logReadEnd(log, err)
			return
		}

		report, _ := s.handler.Handle(ctx, frame, model.TransportTCP, remote)
		if report == nil {
			continue
		}

		deviceID := report.DeviceID
		s.registry.Bind(deviceID, h, string(report.Variant))
		if _, ok := bound[deviceID]; !ok {
			bound[deviceID] = struct{}{}
			s.handler.metrics.ActiveSessions.Set(float64(s.registry.Len()))
			log.Info().Str("device", deviceID).Msg("device bound")
		}
		s.markOnline(ctx, report, log)

		if s.cfg.Ack != "" {
			if err := h.Send([]byte(s.cfg.Ack + "\r\n")); err != nil {
				log.Warn().Err(err).Str("device", deviceID).Msg("ack write failed")
				return
			}
		}

		if _, err := s.queue.Drain(ctx, deviceID, h); err != nil {
			var te *session.TransportError
			if errors.As(err, &te) {
				return
			}
			log.Error().Err(err).Str("device", deviceID).Msg("command drain failed")
		}
	}
}

func (s *TCPServer) logReadEnd(log zerolog.Logger, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		log.Debug().Msg("connection closed")
	case errors.As(err, &netErr) && netErr.Timeout():
		log.Info().Dur("idle", s.cfg.IdleTimeout).Msg("idle connection closed")
	default:
		log.Warn().Err(&session.TransportError{Op: "read", Err: err}).Msg("connection read failed")
	}
}

func (s *TCPServer) markOnline(ctx context.Context, report *model.LocationReport, log zerolog.Logger) {
	if s.presence == nil {
		return
	}
	sess, ok := s.registry.Get(report.DeviceID)
	if !ok {
		return
	}
	p := cache.Presence{
		DeviceID:   report.DeviceID,
		RemoteAddr: sess.RemoteAddr,
		Variant:    sess.Variant,
		Since:      sess.ConnectedAt,
	}
	if err := s.presence.MarkOnline(ctx, p, s.presenceTTL()); err != nil {
		log.Warn().Err(err).Str("device", report.DeviceID).Msg("presence update failed")
	}
}

func (s *TCPServer) presenceTTL() time.Duration {
	if s.cfg.IdleTimeout > 0 {
		return s.cfg.IdleTimeout
	}
	return 10 * time.Minute
}

// unbindAll drops the bindings this connection still owns. A device that
// reconnected elsewhere keeps its newer binding and presence.
func (s *TCPServer) unbindAll(bound map[string]struct{}, h *session.Handle, log zerolog.Logger) {
	for deviceID := range bound {
		if !s.registry.Unbind(deviceID, h) {
			continue
		}
		log.Info().Str("device", deviceID).Msg("device unbound")
		if s.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.presence.MarkOffline(ctx, deviceID); err != nil {
				log.Warn().Err(err).Str("device", deviceID).Msg("presence clear failed")
			}
			cancel()
		}
	}
	s.handler.metrics.ActiveSessions.Set(float64(s.registry.Len()))
}
