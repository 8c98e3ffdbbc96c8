package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/vacc/internal/channels"
	"github.com/roach88/vacc/internal/engine"
	"github.com/roach88/vacc/internal/lattice"
	"github.com/roach88/vacc/internal/logging"
	"github.com/roach88/vacc/internal/store"
)

type fakeStatus struct {
	status engine.Status
}

func (f fakeStatus) Status() engine.Status { return f.status }

func testDefinitions() []channels.Definition {
	return []channels.Definition{
		{Name: "Q1:GRAD_CSET", Kind: channels.ReadWrite, Element: "Q1", Unit: "T/m", Precision: 4},
		{Name: "Q1:GRAD_RSET", Kind: channels.ReadOnly, Element: "Q1", Unit: "T/m", Precision: 4},
		{Name: "Q1:GRAD_RD", Kind: channels.ReadOnly, Element: "Q1", Unit: "T/m", Precision: 4},
		{Name: "BPM1:X_RD", Kind: channels.ReadOnly, Element: "BPM1", Unit: "mm", Precision: 4},
	}
}

type fixture struct {
	host  *channels.Server
	store *store.Store
	echo  *echo.Echo
}

func newFixture(t *testing.T, status StatusSource) *fixture {
	t.Helper()

	host, err := channels.NewServer(testDefinitions())
	require.NoError(t, err)
	t.Cleanup(host.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	e := New(Dependencies{
		Host:    host,
		Status:  status,
		History: st,
		Logger:  logging.Discard(),
		Version: "test",
	})
	return &fixture{host: host, store: st, echo: e}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	f := newFixture(t, fakeStatus{engine.Status{State: engine.Running, RunID: "run-1", Cycles: 3}})
	rec := f.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "running", got["state"])
	assert.Equal(t, "run-1", got["run_id"])
	assert.EqualValues(t, 3, got["cycles"])
}

func TestStatus_NoRuntime(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).Code)
}

func TestListChannels(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.host.Put("BPM1:X_RD", 1.25))

	rec := f.do(http.MethodGet, "/api/channels", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 4)
	assert.Equal(t, "Q1:GRAD_CSET", got[0]["name"])
	assert.Equal(t, "rw", got[0]["kind"])
	assert.Equal(t, "BPM1:X_RD", got[3]["name"])
	assert.Equal(t, "ro", got[3]["kind"])
	assert.Equal(t, 1.25, got[3]["value"])
}

func TestGetChannel(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.host.Put("Q1:GRAD_RD", -4.5))

	rec := f.do(http.MethodGet, "/api/channels/Q1:GRAD_RD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, -4.5, got["value"])
	assert.Equal(t, "T/m", got["unit"])

	rec = f.do(http.MethodGet, "/api/channels/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestPutChannel(t *testing.T) {
	f := newFixture(t, nil)

	var (
		mu      sync.Mutex
		written []float64
	)
	require.NoError(t, f.host.OnWrite("Q1:GRAD_CSET", func(_ string, v float64) {
		mu.Lock()
		written = append(written, v)
		mu.Unlock()
	}))

	rec := f.do(http.MethodPut, "/api/channels/Q1:GRAD_CSET", `{"value": 12.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	v, err := f.host.Get("Q1:GRAD_CSET")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
	mu.Lock()
	assert.Equal(t, []float64{12.5}, written)
	mu.Unlock()
}

func TestPutChannel_Errors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"read-only", "/api/channels/Q1:GRAD_RD", `{"value": 1}`, http.StatusForbidden, "READ_ONLY"},
		{"unknown", "/api/channels/NOPE_CSET", `{"value": 1}`, http.StatusNotFound, "NOT_FOUND"},
		{"missing value", "/api/channels/Q1:GRAD_CSET", `{}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"malformed", "/api/channels/Q1:GRAD_CSET", `{"value": "x"}`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPut, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}

	v, err := f.host.Get("Q1:GRAD_RD")
	require.NoError(t, err)
	assert.Zero(t, v, "rejected writes leave the value untouched")
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, fakeStatus{engine.Status{RunID: "run-7"}})
	require.NoError(t, f.host.PutMany(map[string]float64{"BPM1:X_RD": 0.5, "Q1:GRAD_RD": 3}))

	rec := f.do(http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var snap Snapshot
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "run-7", snap.RunID)
	assert.Len(t, snap.Values, 4)
	assert.Equal(t, 0.5, snap.Values["BPM1:X_RD"])
	assert.Equal(t, 3.0, snap.Values["Q1:GRAD_RD"])
}

func TestCycles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.store.WriteRun(ctx, lattice.RunRecord{ID: "run-1", StartedAt: t0}))
	for seq := int64(1); seq <= 4; seq++ {
		c := lattice.CycleRecord{RunID: "run-1", Seq: seq, StartedAt: t0.Add(time.Duration(seq) * time.Second)}
		if seq == 2 {
			c.Error = "SOLVER_FAILED: exit status 1"
		} else {
			c.Readbacks = map[string]float64{"BPM1:X_RD": float64(seq)}
		}
		require.NoError(t, f.store.WriteCycle(ctx, c))
	}

	rec := f.do(http.MethodGet, "/api/cycles?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got CyclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(4), got.Total)
	assert.Equal(t, int64(1), got.Failed)
	require.Len(t, got.Cycles, 2)
	assert.Equal(t, int64(3), got.Cycles[0].Seq)
	assert.Equal(t, 4.0, got.Cycles[1].Readbacks["BPM1:X_RD"])
}

func TestCycles_Errors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/cycles", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no runs recorded")

	rec = f.do(http.MethodGet, "/api/cycles?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/cycles?run=ghost", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got CyclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Cycles)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "HTTP_ERROR", decodeError(t, rec).Code)
}

func dialMonitor(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.echo)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/monitor" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	return ws
}

func TestMonitor_StreamsUpdates(t *testing.T) {
	f := newFixture(t, nil)
	ws := dialMonitor(t, f, "")

	require.NoError(t, f.host.Put("BPM1:X_RD", 0.75))
	rec := f.do(http.MethodPut, "/api/channels/Q1:GRAD_CSET", `{"value": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var u channels.Update
	require.NoError(t, ws.ReadJSON(&u))
	assert.Equal(t, "BPM1:X_RD", u.Name)
	assert.Equal(t, 0.75, u.Value)

	require.NoError(t, ws.ReadJSON(&u))
	assert.Equal(t, "Q1:GRAD_CSET", u.Name)
	assert.Equal(t, 2.0, u.Value)
}

func TestMonitor_InitialMsgpack(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.host.Put("Q1:GRAD_RD", 9))
	ws := dialMonitor(t, f, "?initial=true&format=msgpack")

	var names []string
	for range testDefinitions() {
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, kind)

		var u channels.Update
		require.NoError(t, msgpack.Unmarshal(data, &u))
		names = append(names, u.Name)
		if u.Name == "Q1:GRAD_RD" {
			assert.Equal(t, 9.0, u.Value)
		}
	}
	assert.Equal(t, []string{"Q1:GRAD_CSET", "Q1:GRAD_RSET", "Q1:GRAD_RD", "BPM1:X_RD"}, names)
}

func TestMonitor_HostCloseEndsStream(t *testing.T) {
	f := newFixture(t, nil)
	ws := dialMonitor(t, f, "")

	f.host.Close()

	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
