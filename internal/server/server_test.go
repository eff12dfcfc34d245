package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachify/internal/engine"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	eng := engine.New(8)
	ln, err := Listen("127.0.0.1:0", eng, 0)
	require.NoError(t, err)

	go func() {
		_ = ln.Serve()
	}()

	return ln.Addr().String(), func() {
		ln.Close()
		eng.Close()
	}
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	return conn, bufio.NewReader(conn)
}

func TestServerPingPong(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("PING\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+PONG\n", line)
}

func TestServerSetGetRoundTrip(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("SET foo bar\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+OK\n", line)

	_, err = conn.Write([]byte("GET foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$3\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bar\n", line)
}

func TestServerGetMiss(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("GET nope\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$-1\n", line)
}

func TestServerDelMissingReportsKeyNotFound(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("DEL nope\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "-ERR key not found\n", line)
}

func TestServerUnknownCommand(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("GETx a b\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "-ERR unknown command\n", line)
}

func TestServerSizeAfterSets(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	for _, k := range []string{"a", "b", "c"} {
		_, err := conn.Write([]byte("SET " + k + " v\n"))
		require.NoError(t, err)
		_, err = r.ReadString('\n')
		require.NoError(t, err)
	}

	_, err := conn.Write([]byte("SIZE\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ":3\n", line)
}

func TestServerQuitClosesConnection(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("QUIT\n"))
	require.NoError(t, err)

	_, err = r.ReadByte()
	assert.Error(t, err, "connection must be closed after QUIT")
}

func TestServerMultipleCommandsInOneWrite(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("SET k v\nGET k\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+OK\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$1\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "v\n", line)
}

func TestServerTTLExpiryOverWire(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, r := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("SET k v 1\n"))
	require.NoError(t, err)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	_, err = conn.Write([]byte("GET k\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$-1\n", line)
}
