package viz

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/scan"
	"github.com/banshee-data/scanroam/internal/testutil"
)

func sampleSnapshot() Snapshot {
	frame := scan.ReducedFrame{
		scan.NewRangeSample(0, 1200),
		scan.NewRangeSample(-0.8, 700),
		scan.NewRangeSample(0.8, 2500),
	}
	return Snapshot{
		Time:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Mode:    behavior.ModeFollowWall,
		Command: behavior.MotionCommand{Linear: 600, Angular: -0.1},
		Sectors: scan.Sectors(frame, 0.2),
		Frame:   frame,
	}
}

func TestPublisher_CopiesFrame(t *testing.T) {
	p := NewPublisher()
	_, ok := p.Latest()
	assert.False(t, ok)

	s := sampleSnapshot()
	p.Publish(s)
	s.Frame[0].Range = 1

	got, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, 1200.0, got.Frame[0].Range, "publisher must keep its own copy")
	assert.Equal(t, uint64(1), got.Seq)

	got.Frame[1].Range = 2
	again, _ := p.Latest()
	assert.Equal(t, 700.0, again.Frame[1].Range, "Latest must hand out copies")
}

func TestPublisher_Subscribe(t *testing.T) {
	p := NewPublisher()
	ch, unsubscribe := p.Subscribe()
	assert.Equal(t, 1, p.Subscribers())

	p.Publish(sampleSnapshot())
	select {
	case s := <-ch:
		assert.Equal(t, behavior.ModeFollowWall, s.Mode)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	// A subscriber that never reads must not block Publish.
	for i := 0; i < subscriberBuffer*3; i++ {
		p.Publish(sampleSnapshot())
	}
	latest, _ := p.Latest()
	assert.Equal(t, uint64(1+subscriberBuffer*3), latest.Seq)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, p.Subscribers())
}

func TestNopSink(t *testing.T) {
	var sink Sink = NopSink{}
	sink.Publish(sampleSnapshot())
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, sampleSnapshot()))
	html := buf.String()
	assert.Contains(t, html, "FOLLOW_WALL")
	assert.Contains(t, html, "echarts")
}

func TestRenderPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPNG(&buf, sampleSnapshot(), 2))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")), "not a PNG")

	buf.Reset()
	require.NoError(t, RenderPNG(&buf, Snapshot{Mode: behavior.ModeIdle}, 2))
	assert.NotZero(t, buf.Len())
}

func TestAdminRoutes(t *testing.T) {
	p := NewPublisher()
	mux := http.NewServeMux()
	p.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/scan", "/debug/scan.png", "/debug/scan.json"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, path))
		testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	}

	p.Publish(sampleSnapshot())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/scan"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/scan.png?size=2"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/scan.png?size=100"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/scan.json"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, behavior.ModeFollowWall, got.Mode)
	assert.Len(t, got.Frame, 3)
}

func TestStreamHandler(t *testing.T) {
	p := NewPublisher()
	p.Publish(sampleSnapshot())

	srv := httptest.NewServer(p.StreamHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(1), first.Seq)

	require.Eventually(t, func() bool { return p.Subscribers() == 1 }, time.Second, time.Millisecond)
	next := sampleSnapshot()
	next.Mode = behavior.ModeSpiral
	p.Publish(next)

	var second Snapshot
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, behavior.ModeSpiral, second.Mode)
	assert.Equal(t, uint64(2), second.Seq)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return p.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
