package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

const (
	// DefaultAddr is where the game plugin sends its datagrams.
	DefaultAddr = "127.0.0.1:12345"

	// DefaultBuffer is the capacity of the message channel handed to the
	// session. Trigger events are rare, so this is never approached in
	// practice; a full channel blocks the reader rather than dropping.
	DefaultBuffer = 32

	maxDatagram = 64 * 1024
)

// Listener reads telemetry datagrams from a bound UDP socket.
type Listener struct {
	conn net.PacketConn
	log  *slog.Logger

	closeOnce sync.Once
}

// Listen binds a UDP socket on addr. Use "127.0.0.1:0" in tests to get an
// ephemeral port and read it back with Addr.
func Listen(addr string, log *slog.Logger) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind telemetry socket %s: %w", addr, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Listener{conn: conn, log: log}, nil
}

// Addr returns the local address the socket is bound to.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Close releases the socket. Run returns once the socket is closed.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() { err = l.conn.Close() })
	return err
}

// Run pushes every received datagram onto out, in arrival order, until ctx
// is cancelled or the socket fails. It closes out before returning; the
// consumer sees channel closure as end of stream. Cancellation returns nil.
func (l *Listener) Run(ctx context.Context, out chan<- []byte) error {
	defer close(out)
	defer l.Close()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read telemetry socket: %w", err)
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		l.log.Debug("telemetry datagram",
			slog.String("from", from.String()),
			slog.Int("bytes", n))

		select {
		case out <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// UDPSource starts a fresh Listener for each session.
type UDPSource struct {
	Addr   string
	Buffer int
	Log    *slog.Logger
}

// Start binds the socket and spawns the reader. The returned channel is
// closed when ctx is cancelled or the socket fails.
func (s *UDPSource) Start(ctx context.Context) (<-chan []byte, error) {
	addr := s.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	size := s.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	l, err := Listen(addr, log)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, size)
	go func() {
		log.Info("telemetry listener started", slog.String("addr", l.Addr().String()))
		if err := l.Run(ctx, out); err != nil {
			log.Error("telemetry listener stopped", slog.String("error", err.Error()))
			return
		}
		log.Info("telemetry listener closed", slog.String("addr", l.Addr().String()))
	}()
	return out, nil
}
