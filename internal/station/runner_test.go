package station

import (
	"context"
	"errors"
	"image"
	"io"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbf-labs/anacase/internal/actuator"
	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/db"
	"github.com/cbf-labs/anacase/internal/metrics"
	"github.com/cbf-labs/anacase/internal/monitoring"
	"github.com/cbf-labs/anacase/internal/serialmux"
	"github.com/cbf-labs/anacase/internal/timeutil"
	"github.com/cbf-labs/anacase/internal/vision"
)

const fixture = "../vision/testdata/conveyor.jsonl"

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

var beam = counting.Beam{
	A:        counting.Point{X: 320, Y: 380},
	B:        counting.Point{X: 320, Y: 50},
	DeadZone: 20,
}

func newEngine(t *testing.T, pct float64, sink actuator.Sink) *counting.Engine {
	t.Helper()
	e, err := counting.New(counting.Config{
		Beam:             beam,
		MinInterval:      2800 * time.Millisecond,
		LoopSample:       1000,
		PercentageSample: pct,
		ReviewTimeout:    10 * time.Second,
		GreenHold:        3 * time.Second,
		RedHold:          2 * time.Second,
		Rand:             rand.New(rand.NewSource(1)),
	}, sink)
	require.NoError(t, err)
	return e
}

func replay(t *testing.T) vision.Source {
	t.Helper()
	src, err := vision.LoadReplay(fixture, false)
	require.NoError(t, err)
	return src
}

// runUntilDone advances clock until Run returns.
func runUntilDone(t *testing.T, r *Runner, clock *timeutil.MockClock, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for {
		clock.Advance(r.Interval)
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("runner did not stop")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestStep_CountsReplayedFixture(t *testing.T) {
	m := metrics.New()
	r := &Runner{Engine: newEngine(t, 0, nil), Source: replay(t), Metrics: m}

	var snap counting.Snapshot
	for i := 0; i < 111; i++ {
		var err error
		snap, err = r.Step(context.Background(), t0.Add(time.Duration(i)*DefaultInterval))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, uint64(111), m.FramesRead.Load())
	assert.Equal(t, uint64(111), m.FramesProcessed.Load())
	assert.Equal(t, 3, m.Last().Count)
}

func TestStep_SourceErrorStillAdvancesTime(t *testing.T) {
	m := metrics.New()
	src := vision.SourceFunc(func(context.Context, time.Time) (counting.Frame, error) {
		return counting.Frame{}, errors.New("camera unplugged")
	})
	r := &Runner{Engine: newEngine(t, 0, nil), Source: src, Metrics: m}

	for i := 0; i < 3; i++ {
		snap, err := r.Step(context.Background(), t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, t0.Add(time.Duration(i)*time.Second), snap.Time)
	}
	assert.Equal(t, uint64(3), m.SourceErrors.Load())
	assert.Zero(t, m.FramesRead.Load())
	assert.Equal(t, uint64(3), m.FramesProcessed.Load())
}

func TestStep_EndOfSource(t *testing.T) {
	eof := vision.SourceFunc(func(context.Context, time.Time) (counting.Frame, error) {
		return counting.Frame{}, io.EOF
	})

	r := &Runner{Engine: newEngine(t, 0, nil), Source: eof, StopOnEOF: true}
	_, err := r.Step(context.Background(), t0)
	assert.ErrorIs(t, err, ErrSourceDone)

	r = &Runner{Engine: newEngine(t, 0, nil), Source: eof}
	snap, err := r.Step(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, t0, snap.Time)
}

func TestStep_RequiresEngineAndSource(t *testing.T) {
	_, err := (&Runner{}).Step(context.Background(), t0)
	assert.Error(t, err)
	assert.Error(t, (&Runner{Engine: newEngine(t, 0, nil)}).Run(context.Background()))
}

func TestStep_KeepsLatestRenderedFrame(t *testing.T) {
	sim, err := vision.NewSimulator(vision.SimulatorConfig{
		Beam: beam, Width: 640, Height: 480, Step: 8, SpawnEvery: 20, Render: true,
		Rand: rand.New(rand.NewSource(2)),
	})
	require.NoError(t, err)
	r := &Runner{Engine: newEngine(t, 0, nil), Source: sim}

	assert.False(t, r.WithLiveFrame(func(image.Image) {}))
	for i := 0; i < 50; i++ {
		_, err := r.Step(context.Background(), t0.Add(time.Duration(i)*DefaultInterval))
		require.NoError(t, err)
	}
	var bounds image.Rectangle
	require.True(t, r.WithLiveFrame(func(img image.Image) { bounds = img.Bounds() }))
	assert.Equal(t, 640, bounds.Dx())
	assert.Equal(t, int64(1), sim.Pool().Live(), "only the live frame is held")

	r.releaseLive()
	assert.Zero(t, sim.Pool().Live())
}

func TestRun_JournalsEventsAndTurnsActuatorsOff(t *testing.T) {
	journal, err := db.NewDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()

	sink := &actuator.RecordingSink{}
	clock := timeutil.NewMockClock(t0)
	m := metrics.New()
	r := &Runner{
		Engine:    newEngine(t, 0, sink),
		Source:    replay(t),
		Clock:     clock,
		Interval:  DefaultInterval,
		Metrics:   m,
		StationID: "AB0C",
		Journal:   journal,
		StopOnEOF: true,
	}

	err = runUntilDone(t, r, clock, context.Background())
	assert.ErrorIs(t, err, ErrSourceDone)

	crossings, err := journal.RecentEvents(0, counting.EventCrossing)
	require.NoError(t, err)
	assert.Len(t, crossings, 3)
	assert.Equal(t, "AB0C", crossings[0].StationID)
	assert.Zero(t, m.JournalErrors.Load())

	assert.Equal(t, 1, sink.AllOffs)
	assert.Equal(t, actuator.Outputs{}, sink.State())
}

func TestRun_StopsOnCancel(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	sink := &actuator.RecordingSink{}
	r := &Runner{Engine: newEngine(t, 0, sink), Source: replay(t), Clock: clock, Interval: DefaultInterval}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, runUntilDone(t, r, clock, ctx))
	assert.Equal(t, 1, sink.AllOffs)
}

func TestRun_PanelButtonAcknowledgesReview(t *testing.T) {
	mux, tower := serialmux.NewMockSerialMux()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mux.Monitor(ctx) }()
	defer mux.Close()

	clock := timeutil.NewMockClock(t0)
	engine := newEngine(t, 100, nil)
	r := &Runner{Engine: engine, Source: replay(t), Clock: clock, Interval: DefaultInterval, Buttons: mux}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		clock.Advance(DefaultInterval)
		return engine.Snapshot(clock.Now()).AlarmActive
	}, 5*time.Second, time.Millisecond, "first crossing opens a review")

	require.NoError(t, tower.Press("ACK"))
	require.Eventually(t, func() bool {
		return engine.Snapshot(clock.Now()).Acknowledged == 1
	}, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
