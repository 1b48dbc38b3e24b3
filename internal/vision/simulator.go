package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cbf-labs/anacase/internal/counting"
)

// SimulatorConfig describes a synthetic conveyor carrying boxes across the
// beam in the counting direction.
type SimulatorConfig struct {
	Beam   counting.Beam
	Width  int
	Height int
	// Step is how far an object moves per frame, in pixels. It must be
	// smaller than the beam approach band or crossings are missed.
	Step float64
	// SpawnEvery is the mean number of frames between new objects. Spawns
	// are held back until the previous box has left the beam.
	SpawnEvery float64
	// Size is the side of the square bounding box, in pixels.
	Size float64
	// Render draws each frame into a pooled image used as the snapshot.
	Render bool
	Rand   *rand.Rand
}

type simObject struct {
	along  float64 // position along the beam, 0..1
	offset float64 // signed distance from the beam
}

// Simulator is a Source that moves boxes across the beam.
type Simulator struct {
	cfg SimulatorConfig

	mu      sync.Mutex
	objects []simObject
	seq     uint64
	spawned uint64
	last    uint64 // seq of the last spawn
	minGap  uint64 // frames between spawns so boxes never overlap
	pool    *ImagePool

	ax, ay     float64
	ux, uy     float64 // unit vector A→B
	nx, ny     float64 // unit normal in the direction of travel
	length     float64
	start, end float64
}

// NewSimulator validates cfg and builds a Simulator.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if err := cfg.Beam.Validate(); err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Size <= 0 {
		cfg.Size = 40
	}
	band := cfg.Beam.Approach
	if band == 0 {
		band = cfg.Beam.DeadZone
	}
	if cfg.Step <= 0 || cfg.Step >= band {
		return nil, fmt.Errorf("step %.1f must be positive and below the approach band %.1f", cfg.Step, band)
	}
	if cfg.SpawnEvery < 1 {
		cfg.SpawnEvery = 30
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}

	dx, dy := cfg.Beam.B.X-cfg.Beam.A.X, cfg.Beam.B.Y-cfg.Beam.A.Y
	l := math.Hypot(dx, dy)
	s := &Simulator{
		cfg:    cfg,
		ax:     cfg.Beam.A.X,
		ay:     cfg.Beam.A.Y,
		ux:     dx / l,
		uy:     dy / l,
		nx:     -dy / l,
		ny:     dx / l,
		length: l,
		start:  -(cfg.Beam.DeadZone + band + cfg.Size),
		end:    cfg.Beam.DeadZone + band + cfg.Size,
	}
	s.minGap = uint64(math.Ceil((s.end-s.start)/cfg.Step)) + 1
	if cfg.Render {
		s.pool = NewImagePool(cfg.Width, cfg.Height)
	}
	return s, nil
}

// Pool returns the image pool used for snapshots, or nil when rendering is
// off.
func (s *Simulator) Pool() *ImagePool { return s.pool }

// Spawned is the number of objects started so far.
func (s *Simulator) Spawned() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned
}

func (s *Simulator) Next(ctx context.Context, now time.Time) (counting.Frame, error) {
	if err := ctx.Err(); err != nil {
		return counting.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	kept := s.objects[:0]
	for _, o := range s.objects {
		o.offset += s.cfg.Step
		if o.offset <= s.end {
			kept = append(kept, o)
		}
	}
	s.objects = kept
	if (s.spawned == 0 || s.seq-s.last >= s.minGap) && s.cfg.Rand.Float64() < 1/s.cfg.SpawnEvery {
		s.last = s.seq
		s.objects = append(s.objects, simObject{along: 0.25 + 0.5*s.cfg.Rand.Float64(), offset: s.start})
		s.spawned++
	}

	f := counting.Frame{Seq: s.seq, Time: now}
	for _, o := range s.objects {
		f.Detections = append(f.Detections, s.detection(o))
	}
	if s.pool != nil {
		f.Snapshot = s.render(f)
	}
	return f, nil
}

func (s *Simulator) detection(o simObject) counting.Detection {
	cx := s.ax + s.ux*o.along*s.length + s.nx*o.offset
	cy := s.ay + s.uy*o.along*s.length + s.ny*o.offset
	half := s.cfg.Size / 2
	return counting.Detection{
		Centroid: counting.Point{X: cx, Y: cy},
		BBox:     counting.Rect{X: cx - half, Y: cy - half, W: s.cfg.Size, H: s.cfg.Size},
		Area:     s.cfg.Size * s.cfg.Size,
	}
}

var (
	conveyorGrey = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	boxBrown     = color.RGBA{R: 170, G: 120, B: 60, A: 255}
)

func (s *Simulator) render(f counting.Frame) *FrameImage {
	img := s.pool.Get(f.Seq, conveyorGrey)
	for _, d := range f.Detections {
		r := image.Rect(int(d.BBox.X), int(d.BBox.Y), int(d.BBox.X+d.BBox.W), int(d.BBox.Y+d.BBox.H))
		draw.Draw(img.Img, r.Intersect(img.Img.Bounds()), image.NewUniform(boxBrown), image.Point{}, draw.Src)
	}
	return img
}
