package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"gpsgateway/internal/core/model"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 65535

// UDPServer stores reports from datagrams. It never acks, binds sessions or
// delivers commands: there is no connection to deliver them over.
type UDPServer struct {
	addr          string
	maxFrameBytes int
	handler       *FrameHandler
	log           zerolog.Logger

	mu       sync.Mutex
	conn     *net.UDPConn
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewUDPServer(addr string, maxFrameBytes int, handler *FrameHandler, log zerolog.Logger) *UDPServer {
	return &UDPServer{
		addr:          addr,
		maxFrameBytes: maxFrameBytes,
		handler:       handler,
		log:           log.With().Str("transport", "udp").Logger(),
		stopped:       make(chan struct{}),
	}
}

func (s *UDPServer) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve UDP address %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to start UDP server: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.log.Info().Str("addr", conn.LocalAddr().String()).Msg("UDP server listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(ctx, conn)
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

func (s *UDPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop closes the socket and waits for the datagram in progress to finish.
func (s *UDPServer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
		close(s.stopped)

		s.wg.Wait()
		s.log.Info().Msg("UDP server stopped")
	})
}

func (s *UDPServer) readLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("UDP read failed")
			continue
		}
		s.handleDatagram(ctx, buf[:n], addr.String())
	}
}

func (s *UDPServer) handleDatagram(ctx context.Context, datagram []byte, remote string) {
	frames, tooLong := SplitFrames(datagram, s.maxFrameBytes)
	for i := 0; i < tooLong; i++ {
		s.handler.RejectOversized(model.TransportUDP, remote)
	}
	for _, frame := range frames {
		// failures are logged and counted by the handler
		_, _ = s.handler.Handle(ctx, frame, model.TransportUDP, remote)
	}
}
