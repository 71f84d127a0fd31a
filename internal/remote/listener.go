package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// readTimeout bounds each read so cancellation is noticed promptly.
const readTimeout = 50 * time.Millisecond

// maxPacket is the largest UDP payload accepted.
const maxPacket = 65507

// Handler receives every decoded toggle, in arrival order, on the
// listener goroutine.
type Handler func(address string, value bool)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Listener owns a UDP socket and feeds toggles to a Handler.
type Listener struct {
	conn    net.PacketConn
	handler Handler
	logger  Logger
}

// Listen binds addr (host:port). Port 0 picks a free port.
func Listen(addr string, handler Handler, logger Logger) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("remote: handler is required")
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding osc listener: %w", err)
	}
	return &Listener{conn: conn, handler: handler, logger: logger}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads packets until ctx is cancelled and closes the socket before
// returning. A socket failure ends Serve with that error.
func (l *Listener) Serve(ctx context.Context) error {
	defer l.conn.Close()

	buf := make([]byte, maxPacket)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("osc listener: %w", err)
		}
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("osc listener: %w", err)
		}

		toggles, err := Decode(buf[:n])
		if err != nil {
			if l.logger != nil {
				l.logger.Debug("Dropping osc packet", "from", from.String(), "error", err)
			}
			continue
		}
		for _, t := range toggles {
			l.handler(t.Address, t.Value)
		}
	}
}
