package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra-monitor/pkg/models"
	"spectra-monitor/pkg/protocol"
)

type readResult struct {
	msg []byte
	err error
}

// scriptConn is a connection the test feeds by hand.
type scriptConn struct {
	reads chan readResult

	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newScriptConn() *scriptConn {
	return &scriptConn{reads: make(chan readResult, 16)}
}

func (c *scriptConn) ReadMessage() (int, []byte, error) {
	r, ok := <-c.reads
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	if r.err != nil {
		return 0, nil, r.err
	}
	return 1, r.msg, nil
}

func (c *scriptConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.reads)
	}
	return nil
}

// serve pushes a server-originated message to the client.
func (c *scriptConn) serve(t *testing.T, event string, payload interface{}) {
	t.Helper()
	msg, err := protocol.Encode(event, payload)
	require.NoError(t, err)
	c.reads <- readResult{msg: msg}
}

// drop simulates the transport failing underneath the client.
func (c *scriptConn) drop() {
	c.reads <- readResult{err: errors.New("connection reset by peer")}
}

func (c *scriptConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// scriptDialer hands out a scripted sequence of dial outcomes.
type scriptDialer struct {
	mu      sync.Mutex
	results []func() (Conn, error)
	dials   int
}

func (d *scriptDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return nil, errors.New("no route to host")
	}
	next := d.results[0]
	d.results = d.results[1:]
	return next()
}

func (d *scriptDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func succeed(conn Conn) func() (Conn, error) {
	return func() (Conn, error) { return conn, nil }
}

func fail() func() (Conn, error) {
	return func() (Conn, error) { return nil, errors.New("connection refused") }
}

// sleepRecorder replaces the client's backoff sleep and records each delay.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

func TestClient_Connect_DeliversEvents(t *testing.T) {
	conn := newScriptConn()
	dialer := &scriptDialer{results: []func() (Conn, error){succeed(conn)}}
	c := NewClient("ws://test/ws", dialer)

	logs := make(chan models.LogEntry, 1)
	flags := make(chan models.FeatureFlag, 1)
	c.OnLog = func(e models.LogEntry) { logs <- e }
	c.OnFlagUpdated = func(f models.FeatureFlag) { flags <- f }

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, StateConnected, c.State())

	conn.serve(t, protocol.EventLogNew, models.LogEntry{ID: "log-1", DeviceID: "dev-1", Message: "hello"})
	conn.serve(t, protocol.EventFlagUpdated, models.FeatureFlag{ID: "flag-1", Key: "dark_mode", Enabled: true})

	select {
	case e := <-logs:
		assert.Equal(t, "log-1", e.ID)
	case <-time.After(time.Second):
		t.Fatal("log callback never fired")
	}
	select {
	case f := <-flags:
		assert.True(t, f.Enabled)
	case <-time.After(time.Second):
		t.Fatal("flag callback never fired")
	}

	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_ScreenFrame_DecodesBareBase64String(t *testing.T) {
	conn := newScriptConn()
	dialer := &scriptDialer{results: []func() (Conn, error){succeed(conn)}}
	c := NewClient("ws://test/ws", dialer)

	frames := make(chan string, 1)
	c.OnScreenFrame = func(image string) { frames <- image }

	require.NoError(t, c.Connect(context.Background()))

	// The server broadcasts the frame as a bare base64 string, not a
	// wrapped object.
	conn.serve(t, protocol.EventScreenOut, "aGVsbG8=")

	select {
	case image := <-frames:
		assert.Equal(t, "aGVsbG8=", image)
	case <-time.After(time.Second):
		t.Fatal("screen frame callback never fired")
	}

	require.NoError(t, c.Close())
}

func TestClient_Connect_InitialDialFailure(t *testing.T) {
	dialer := &scriptDialer{results: []func() (Conn, error){fail()}}
	c := NewClient("ws://test/ws", dialer)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_Reconnect_BackoffSequenceAndGiveUp(t *testing.T) {
	conn := newScriptConn()
	dialer := &scriptDialer{results: []func() (Conn, error){succeed(conn)}}
	rec := &sleepRecorder{}

	c := NewClient("ws://test/ws", dialer)
	c.sleep = rec.sleep

	require.NoError(t, c.Connect(context.Background()))

	// Every redial fails; the client must retry five times then stop.
	conn.drop()

	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}, rec.recorded())
	assert.Equal(t, 1+maxReconnectAttempts, dialer.dialCount())
}

func TestClient_Reconnect_AttemptCounterResetsOnSuccess(t *testing.T) {
	conn1 := newScriptConn()
	conn2 := newScriptConn()
	conn3 := newScriptConn()
	dialer := &scriptDialer{results: []func() (Conn, error){
		succeed(conn1),
		fail(), // first redial fails
		succeed(conn2),
		succeed(conn3),
	}}
	rec := &sleepRecorder{}

	c := NewClient("ws://test/ws", dialer)
	c.sleep = rec.sleep

	require.NoError(t, c.Connect(context.Background()))

	conn1.drop()
	require.Eventually(t, func() bool {
		return c.State() == StateConnected && dialer.dialCount() == 3
	}, 2*time.Second, 5*time.Millisecond)

	conn2.drop()
	require.Eventually(t, func() bool {
		return c.State() == StateConnected && dialer.dialCount() == 4
	}, 2*time.Second, 5*time.Millisecond)

	// First cycle pays 2s then 4s; the second starts over at 2s.
	assert.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		2 * time.Second,
	}, rec.recorded())

	require.NoError(t, c.Close())
}

func TestClient_Reconnect_RejoinsSessionFirst(t *testing.T) {
	conn1 := newScriptConn()
	conn2 := newScriptConn()
	dialer := &scriptDialer{results: []func() (Conn, error){succeed(conn1), succeed(conn2)}}
	rec := &sleepRecorder{}

	c := NewClient("ws://test/ws", dialer)
	c.sleep = rec.sleep

	logs := make(chan models.LogEntry, 1)
	c.OnLog = func(e models.LogEntry) { logs <- e }

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.JoinSession("dev-1"))

	conn1.drop()
	require.Eventually(t, func() bool {
		return c.State() == StateConnected && dialer.dialCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	writes := conn2.written()
	require.Len(t, writes, 1, "exactly one frame before anything else")

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(writes[0], &env))
	assert.Equal(t, protocol.EventJoinSession, env.Event)

	var join protocol.JoinPayload
	require.NoError(t, json.Unmarshal(env.Data, &join))
	assert.Equal(t, "dev-1", join.DeviceID)

	// The resubscribed session keeps streaming.
	conn2.serve(t, protocol.EventLogNew, models.LogEntry{ID: "log-2", DeviceID: "dev-1"})
	select {
	case e := <-logs:
		assert.Equal(t, "log-2", e.ID)
	case <-time.After(time.Second):
		t.Fatal("log callback never fired after reconnect")
	}

	require.NoError(t, c.Close())
}

func TestClient_Close_NeverReconnects(t *testing.T) {
	conn := newScriptConn()
	dialer := &scriptDialer{results: []func() (Conn, error){succeed(conn), succeed(newScriptConn())}}

	c := NewClient("ws://test/ws", dialer)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount(), "an intentional close must not trigger a redial")
	assert.Equal(t, StateDisconnected, c.State())
}
