package server

import (
	"net"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"cachify/internal/engine"
	"cachify/internal/protocol"
)

// ErrClosedConnection classifies a "use of closed network connection"
// I/O error into a sentinel callers can errors.Is against instead of
// string-matching.
var ErrClosedConnection = errors.New("closed connection")

// ErrConnReset classifies a connection torn down by the peer.
var ErrConnReset = errors.New("connection reset by peer")

// ErrBrokenPipe classifies a write to a peer that has gone away.
var ErrBrokenPipe = errors.New("broken pipe")

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrConnReset
	}
	if errors.Is(err, syscall.EPIPE) {
		return ErrBrokenPipe
	}
	if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "closed") {
		return ErrClosedConnection
	}
	return err
}

// handleConn runs one goroutine per connection: it reads raw bytes
// into a growing buffer and splits on '\n' itself rather than using
// bufio.Scanner, so a single fixed-size read can yield zero, one, or
// several complete commands depending on how the client batches writes.
func handleConn(conn net.Conn, eng *engine.Engine, readBufferBytes int, done <-chan struct{}) {
	remote := conn.RemoteAddr()
	log := logger.WithFields(logrus.Fields{"remote": remote})
	log.Info("connection accepted")
	defer func() {
		conn.Close()
		log.Info("connection closed")
	}()

	closeSignal := make(chan struct{})
	defer close(closeSignal)
	go func() {
		select {
		case <-done:
			conn.Close()
		case <-closeSignal:
		}
	}()

	buf := make([]byte, readBufferBytes)
	var partial []byte

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			for {
				idx := indexByte(partial, '\n')
				if idx < 0 {
					break
				}
				line := strings.TrimSpace(string(partial[:idx]))
				partial = partial[idx+1:]
				if line == "" {
					continue
				}
				if quit := dispatch(conn, eng, line, log); quit {
					return
				}
			}
		}
		if err != nil {
			if ce := classify(err); !errors.Is(ce, ErrClosedConnection) {
				log.WithFields(logrus.Fields{"error": ce}).Warn("connection read error")
			}
			return
		}
	}
}

// dispatch parses and executes one line, writing exactly one reply for
// every command except QUIT, which writes none. It returns true when
// the connection should close (QUIT).
func dispatch(conn net.Conn, eng *engine.Engine, line string, log *logrus.Entry) bool {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		writeReply(conn, protocol.ReplyForError(err), log)
		return false
	}

	switch cmd.Kind {
	case protocol.KindPing:
		writeReply(conn, protocol.Pong(), log)

	case protocol.KindSet:
		eng.Set(cmd.Key, cmd.Value, cmd.TTL)
		writeReply(conn, protocol.OK(), log)

	case protocol.KindGet:
		if v, ok := eng.Get(cmd.Key); ok {
			writeReply(conn, protocol.Bulk(v), log)
		} else {
			writeReply(conn, protocol.NullBulk(), log)
		}

	case protocol.KindDel:
		if eng.Del(cmd.Key) {
			writeReply(conn, protocol.OK(), log)
		} else {
			writeReply(conn, protocol.KeyNotFound(), log)
		}

	case protocol.KindSize:
		writeReply(conn, protocol.Integer(eng.Size()), log)

	case protocol.KindQuit:
		return true
	}
	return false
}

// writeReply is best-effort: a write failure is logged and otherwise
// ignored; the connection ends when its next read fails. Nothing here
// retries a failed write or reconnects.
func writeReply(conn net.Conn, reply []byte, log *logrus.Entry) {
	if _, err := conn.Write(reply); err != nil {
		log.WithFields(logrus.Fields{"error": classify(err)}).Warn("write failed")
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
