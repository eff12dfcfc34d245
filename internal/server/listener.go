package server

import (
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"cachify/internal/config"
	"cachify/internal/engine"
)

// Backlog is 128. Listen does not pass it to the socket: net.Listen
// takes no backlog argument, so the listening socket uses the
// operating system's default backlog.
const Backlog = 128

// Listener is component F: it binds once and spawns a goroutine per
// accepted connection, all sharing one engine.
type Listener struct {
	ln              net.Listener
	eng             *engine.Engine
	readBufferBytes int
	done            chan struct{}
	closeOnce       sync.Once
}

// Listen binds addr (host:port, or :port for all interfaces) and
// returns a Listener ready to Serve. readBufferBytes defaults to
// config.DefaultReadBufferBytes when <= 0.
func Listen(addr string, eng *engine.Engine, readBufferBytes int) (*Listener, error) {
	if readBufferBytes <= 0 {
		readBufferBytes = config.DefaultReadBufferBytes
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Errorf("listen %q: %w", addr, err)
	}

	return &Listener{
		ln:              ln,
		eng:             eng,
		readBufferBytes: readBufferBytes,
		done:            make(chan struct{}),
	}, nil
}

// Addr returns the bound address, useful for tests that bind to
// "127.0.0.1:0" and need to know which port the OS picked.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Done returns a channel closed once Close has been called, so callers
// can fan it in with other shutdown sources (e.g. an OS signal) via
// chanutil.Or instead of polling.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Serve accepts connections until Close is called. Each connection
// runs in its own goroutine sharing the Listener's engine.
func (l *Listener) Serve() error {
	logger.WithFields(logrus.Fields{"addr": l.ln.Addr()}).Info("cachify server listening")
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return nil
			default:
			}
			logger.WithFields(logrus.Fields{"error": err}).Warn("accept error")
			continue
		}
		go handleConn(conn, l.eng, l.readBufferBytes, l.done)
	}
}

// Close stops accepting new connections and signals in-flight
// connection goroutines to shut down. It does not wait for them. Safe
// to call more than once; only the first call has effect.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.ln.Close()
	})
	return err
}
