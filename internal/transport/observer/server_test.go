package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"voxelflow/internal/observerproto"
	"voxelflow/internal/sim/engine"
	"voxelflow/internal/sim/grid"
	"voxelflow/internal/sim/model"
	"voxelflow/internal/sim/tuning"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	m := &model.Model{Name: "box", Scale: model.Vec3{4, 3, 2}}
	b := model.NewBlock("cpu", nil)
	b.Scale = model.Vec3{0.25, 1.0 / 3, 0.5}
	b.Position = model.Vec3{-0.375, 0, -0.25}
	b.Source = model.SourceCPU
	m.Add(b)

	tune := tuning.Defaults()
	tune.Kernel = "copy"
	eng, err := engine.New(m, engine.Options{Name: "box", Tuning: tune})
	require.NoError(t, err)
	require.NoError(t, eng.Init())
	return eng
}

func TestBuildSlice_Axes(t *testing.T) {
	eng := newTestEngine(t)

	cases := []struct {
		axis  string
		index int
		w, h  int
	}{
		{"z", 0, 4, 3},
		{"y", 1, 4, 2},
		{"x", 0, 3, 2},
	}
	for _, c := range cases {
		sub := observerproto.SubscribeMsg{Field: observerproto.FieldSource, Axis: c.axis, Index: c.index}
		require.NoError(t, normalizeSubscribe(&sub, eng.Dims()))
		var msg observerproto.SliceMsg
		require.NoError(t, eng.View(func(s *grid.Store) { msg = buildSlice(s, sub, 7) }))
		require.Equal(t, c.w, msg.W, c.axis)
		require.Equal(t, c.h, msg.H, c.axis)
		require.Len(t, msg.Data, c.w*c.h)
		require.Equal(t, uint64(7), msg.Tick)
		// The cpu block covers voxel (0,1,0) only.
		require.Equal(t, float32(model.SourceCPU), msg.Max, c.axis)
	}

	sub := observerproto.SubscribeMsg{Field: observerproto.FieldSource, Axis: "z"}
	require.NoError(t, normalizeSubscribe(&sub, eng.Dims()))
	var msg observerproto.SliceMsg
	require.NoError(t, eng.View(func(s *grid.Store) { msg = buildSlice(s, sub, 0) }))
	require.Equal(t, float32(model.SourceCPU), msg.Data[0+1*4])
	require.Equal(t, float32(0), msg.Data[0])
}

func TestNormalizeSubscribe(t *testing.T) {
	d := grid.Dims{X: 4, Y: 3, Z: 2}

	sub := observerproto.SubscribeMsg{Index: 99}
	require.NoError(t, normalizeSubscribe(&sub, d))
	require.Equal(t, observerproto.FieldAirTemp, sub.Field)
	require.Equal(t, "z", sub.Axis)
	require.Equal(t, 1, sub.Index)

	sub = observerproto.SubscribeMsg{Axis: "w"}
	require.Error(t, normalizeSubscribe(&sub, d))

	sub = observerproto.SubscribeMsg{Field: "velocity"}
	require.Error(t, normalizeSubscribe(&sub, d))
}

func TestBootstrapHandler(t *testing.T) {
	eng := newTestEngine(t)
	srv := NewServer(eng, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr := httptest.NewRecorder()
	srv.BootstrapHandler()(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp observerproto.BootstrapResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, [3]int{4, 3, 2}, resp.Dims)
	require.Equal(t, "copy", resp.Kernel)
	require.True(t, resp.Ready)
	require.Contains(t, resp.SourceKinds, "cpu")
	require.Contains(t, resp.FanKinds, "front1")

	req = httptest.NewRequest(http.MethodGet, "/v1/observer/bootstrap", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rr = httptest.NewRecorder()
	srv.BootstrapHandler()(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestWSHandler_SubscribeAndStep(t *testing.T) {
	eng := newTestEngine(t)
	srv := NewServer(eng, nil)
	eng.AddSink(srv)

	hs := httptest.NewServer(srv.WSHandler())
	defer hs.Close()

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		Field:           observerproto.FieldAirTemp,
		Axis:            "z",
		Index:           1,
	}))

	read := func() observerproto.SliceMsg {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg observerproto.SliceMsg
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	require.Equal(t, "SLICE", first.Type)
	require.Equal(t, uint64(0), first.Tick)
	require.Equal(t, 4, first.W)
	require.Equal(t, 3, first.H)
	for _, v := range first.Data {
		require.Equal(t, float32(20), v)
	}

	require.Eventually(t, func() bool { return srv.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, eng.Simulate())

	next := read()
	require.Equal(t, uint64(1), next.Tick)
	require.Equal(t, 1, next.Index)
}

func TestWSHandler_RejectsBadSubscribe(t *testing.T) {
	eng := newTestEngine(t)
	srv := NewServer(eng, nil)

	hs := httptest.NewServer(srv.WSHandler())
	defer hs.Close()

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "HELLO"}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}
