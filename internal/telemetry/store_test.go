package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/scan"
	"github.com/banshee-data/scanroam/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func okTick(seq uint64, mode behavior.Mode) Tick {
	frame := scan.ReducedFrame{scan.NewRangeSample(0, 1000), scan.NewRangeSample(0.5, 2000)}
	return Tick{
		Seq:       seq,
		Time:      t0.Add(time.Duration(seq) * 100 * time.Millisecond),
		Status:    StatusOK,
		Decision:  behavior.Decision{Mode: mode, Command: behavior.MotionCommand{Linear: 1000}},
		RawPoints: 10,
		Sectors:   scan.Sectors(frame, 0.25),
		Stats:     scan.Stats(frame),
	}
}

func TestOpen_MigratesSchema(t *testing.T) {
	s := openTestStore(t)
	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.StartRun(context.Background(), t0, RunMeta{Version: "test"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartRun(ctx, t0, RunMeta{Version: "dev", SensorMode: "sim", ActuatorMode: "sim", Seed: 9})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	require.NoError(t, s.RecordTick(ctx, id, okTick(1, behavior.ModeForward)))
	require.NoError(t, s.RecordTick(ctx, id, okTick(2, behavior.ModeForward)))
	require.NoError(t, s.RecordTick(ctx, id, okTick(3, behavior.ModeTurn)))
	require.NoError(t, s.RecordTick(ctx, id, Tick{
		Seq: 4, Time: t0.Add(400 * time.Millisecond), Status: StatusAcquireError,
		Decision: behavior.Decision{Mode: behavior.ModeTurn}, Err: "no scan",
	}))
	require.NoError(t, s.RecordTransition(ctx, id, t0, behavior.ModeIdle, behavior.ModeForward))
	require.NoError(t, s.RecordTransition(ctx, id, t0.Add(300*time.Millisecond), behavior.ModeForward, behavior.ModeTurn))
	require.NoError(t, s.EndRun(ctx, id, t0.Add(time.Second)))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4, runs[0].Ticks)
	assert.Equal(t, 1, runs[0].Failures)
	require.NotNil(t, runs[0].EndedAt)
	assert.True(t, runs[0].EndedAt.Equal(t0.Add(time.Second)))
	assert.Equal(t, "sim", runs[0].SensorMode)

	counts, err := s.ModeCounts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[behavior.Mode]int{behavior.ModeForward: 2, behavior.ModeTurn: 1}, counts)

	transitions, err := s.Transitions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, [][2]behavior.Mode{
		{behavior.ModeIdle, behavior.ModeForward},
		{behavior.ModeForward, behavior.ModeTurn},
	}, transitions)
}

func TestRecordTick_DuplicateFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartRun(ctx, t0, RunMeta{})
	require.NoError(t, err)

	require.NoError(t, s.RecordTick(ctx, id, okTick(1, behavior.ModeForward)))
	assert.Error(t, s.RecordTick(ctx, id, okTick(1, behavior.ModeForward)))
}

func TestEndRun_Unknown(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.EndRun(context.Background(), "missing", t0))
}

func TestNoReturnSectorsStoredAsNull(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartRun(ctx, t0, RunMeta{})
	require.NoError(t, err)

	tick := okTick(1, behavior.ModeForward)
	tick.Sectors.Left = scan.NoReturn
	require.NoError(t, s.RecordTick(ctx, id, tick))

	var nulls int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE left_range IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestRecorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartRun(ctx, t0, RunMeta{})
	require.NoError(t, err)

	rec := NewRecorder(s, id, 16)
	assert.Equal(t, id, rec.RunID())
	done := make(chan struct{})
	go func() {
		rec.Run()
		close(done)
	}()

	for i := uint64(1); i <= 5; i++ {
		rec.RecordTick(okTick(i, behavior.ModeForward))
	}
	rec.RecordTransition(t0, behavior.ModeIdle, behavior.ModeForward)
	rec.Close()
	rec.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not drain")
	}
	written, dropped := rec.Stats()
	assert.Equal(t, uint64(6), written)
	assert.Zero(t, dropped)

	counts, err := s.ModeCounts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[behavior.ModeForward])
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s, "unused", 2)
	for i := uint64(1); i <= 5; i++ {
		rec.RecordTick(okTick(i, behavior.ModeForward))
	}
	_, dropped := rec.Stats()
	assert.Equal(t, uint64(3), dropped)
}

func TestAdminRoutes(t *testing.T) {
	s := openTestStore(t)
	_, err := s.StartRun(context.Background(), t0, RunMeta{SensorMode: "udp"})
	require.NoError(t, err)

	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/runs"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "udp")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/tailsql/"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}
