// Package station runs the processing loop: one frame per tick through the
// counting engine, with panel buttons, the audit journal and metrics attached.
package station

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/metrics"
	"github.com/cbf-labs/anacase/internal/monitoring"
	"github.com/cbf-labs/anacase/internal/serialmux"
	"github.com/cbf-labs/anacase/internal/timeutil"
	"github.com/cbf-labs/anacase/internal/vision"
)

// DefaultInterval is the cycle period used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// ErrSourceDone is returned by Run when the frame source is exhausted and
// StopOnEOF is set.
var ErrSourceDone = errors.New("frame source exhausted")

// Journal persists engine events.
type Journal interface {
	Consume(ctx context.Context, stationID string, events <-chan counting.Event, onErr func(error))
}

// Runner owns the driver loop. Engine and Source are required.
type Runner struct {
	Engine    *counting.Engine
	Source    vision.Source
	Clock     timeutil.Clock
	Interval  time.Duration
	Metrics   *metrics.Metrics
	StationID string

	// Buttons, when set, feeds panel button lines to the engine.
	Buttons serialmux.SerialMuxInterface
	// Journal, when set, receives every engine event.
	Journal Journal
	// StopOnEOF ends Run once the source is exhausted. Otherwise the loop
	// keeps stepping empty frames so holds and review timeouts still expire.
	StopOnEOF bool

	mu         sync.Mutex
	live       *vision.FrameImage
	sourceDown bool
}

func (r *Runner) defaults() error {
	if r.Engine == nil || r.Source == nil {
		return errors.New("station runner needs an engine and a frame source")
	}
	if r.Clock == nil {
		r.Clock = timeutil.RealClock{}
	}
	if r.Interval <= 0 {
		r.Interval = DefaultInterval
	}
	if r.Metrics == nil {
		r.Metrics = metrics.New()
	}
	return nil
}

// Run steps the engine once per tick until ctx is done or the source ends.
// On exit the engine is shut down, which turns every actuator off and closes
// the journal subscription after its final events are written.
func (r *Runner) Run(ctx context.Context) (err error) {
	if err := r.defaults(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if r.Journal != nil {
		_, events := r.Engine.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Runs until Shutdown closes the subscription.
			r.Journal.Consume(context.WithoutCancel(ctx), r.StationID, events, func(error) {
				r.Metrics.JournalErrors.Add(1)
			})
		}()
	}

	buttonsCtx, stopButtons := context.WithCancel(ctx)
	if r.Buttons != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serialmux.ListenButtons(buttonsCtx, r.Buttons, r.Engine, r.Clock.Now)
		}()
	}

	defer func() {
		stopButtons()
		if shutdownErr := r.Engine.Shutdown(r.Clock.Now()); shutdownErr != nil {
			monitoring.Logf("❌ Error during engine shutdown: %v", shutdownErr)
			err = errors.Join(err, shutdownErr)
		}
		wg.Wait()
		r.releaseLive()
	}()

	ticker := r.Clock.NewTicker(r.Interval)
	defer ticker.Stop()

	monitoring.Logf("station %s running every %s", r.StationID, r.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			if _, err := r.Step(ctx, now); err != nil {
				return err
			}
		}
	}
}

// Step runs one cycle at now. It returns ErrSourceDone when the source is
// exhausted and StopOnEOF is set.
func (r *Runner) Step(ctx context.Context, now time.Time) (counting.Snapshot, error) {
	if err := r.defaults(); err != nil {
		return counting.Snapshot{}, err
	}

	f, err := r.Source.Next(ctx, now)
	switch {
	case err == nil:
		r.Metrics.FramesRead.Add(1)
		if r.sourceDown {
			monitoring.Logf("✓ frame source recovered")
			r.sourceDown = false
		}
	case errors.Is(err, io.EOF):
		if r.StopOnEOF {
			return counting.Snapshot{}, ErrSourceDone
		}
		f = counting.Frame{}
	case ctx.Err() != nil:
		return counting.Snapshot{}, nil
	default:
		r.Metrics.SourceErrors.Add(1)
		if !r.sourceDown {
			monitoring.Logf("❌ Error reading frame: %v", err)
		}
		r.sourceDown = true
		f = counting.Frame{}
	}
	if f.Time.IsZero() {
		f.Time = now
	}

	img, _ := f.Snapshot.(*vision.FrameImage)
	if img != nil {
		img.Retain()
	}

	start := r.Clock.Now()
	snap := r.Engine.Step(f)
	r.Metrics.ObserveStep(r.Clock.Since(start))
	r.Metrics.Observe(snap)

	if img != nil {
		r.setLive(img)
	}
	return snap, nil
}

func (r *Runner) setLive(img *vision.FrameImage) {
	r.mu.Lock()
	old := r.live
	r.live = img
	r.mu.Unlock()
	old.Release()
}

func (r *Runner) releaseLive() {
	r.mu.Lock()
	old := r.live
	r.live = nil
	r.mu.Unlock()
	old.Release()
}

// WithLiveFrame calls fn with the most recent rendered frame. It reports
// whether there was one.
func (r *Runner) WithLiveFrame(fn func(image.Image)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live == nil {
		return false
	}
	fn(r.live.Img)
	return true
}
