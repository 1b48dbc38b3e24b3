package counting

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeam_Classify(t *testing.T) {
	diagonal := Beam{A: Point{0, 0}, B: Point{100, 100}, DeadZone: 5, Approach: 10}

	tests := []struct {
		name string
		beam Beam
		p    Point
		want zone
	}{
		{"on the line", testBeam, Point{320, 100}, zoneDead},
		{"dead zone edge", testBeam, Point{320, 120}, zoneDead},
		{"entry band", testBeam, Point{320, 70}, zoneEntry},
		{"entry band outer edge", testBeam, Point{320, 60}, zoneEntry},
		{"beyond entry band", testBeam, Point{320, 59}, zoneOutside},
		{"exit band", testBeam, Point{320, 130}, zoneExit},
		{"exit band outer edge", testBeam, Point{320, 140}, zoneExit},
		{"beyond exit band", testBeam, Point{320, 141}, zoneOutside},
		{"past segment end", testBeam, Point{700, 130}, zoneOutside},
		{"before segment start", testBeam, Point{-1, 70}, zoneOutside},
		{"diagonal left side", diagonal, Point{40, 50}, zoneExit},
		{"diagonal right side", diagonal, Point{50, 40}, zoneEntry},
		{"diagonal far", diagonal, Point{20, 80}, zoneOutside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.beam.classify(tt.p))
		})
	}
}

func TestBeam_Validate(t *testing.T) {
	tests := []struct {
		name string
		beam Beam
	}{
		{"same endpoints", Beam{A: Point{1, 1}, B: Point{1, 1}, DeadZone: 5}},
		{"negative dead zone", Beam{A: Point{0, 0}, B: Point{1, 0}, DeadZone: -1}},
		{"negative approach", Beam{A: Point{0, 0}, B: Point{1, 0}, DeadZone: 1, Approach: -2}},
		{"no bands", Beam{A: Point{0, 0}, B: Point{1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCrossingDetector(tt.beam, 0, 0)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}

	_, err := NewCrossingDetector(testBeam, -time.Second, 0)
	assert.Error(t, err)
}

func TestCrossingDetector(t *testing.T) {
	type cycle struct {
		dets []Detection
		want bool
	}
	tests := []struct {
		name   string
		cycles []cycle
	}{
		{
			name: "entry then exit",
			cycles: []cycle{
				{[]Detection{det(320, entryY)}, false},
				{[]Detection{det(320, deadY)}, false},
				{[]Detection{det(320, exitY)}, true},
			},
		},
		{
			name: "lingering in exit band counts once",
			cycles: []cycle{
				{[]Detection{det(320, entryY)}, false},
				{[]Detection{det(320, exitY)}, true},
				{[]Detection{det(322, exitY)}, false},
				{[]Detection{det(324, exitY + 5)}, false},
			},
		},
		{
			name: "jitter around the line without exiting",
			cycles: []cycle{
				{[]Detection{det(320, entryY)}, false},
				{[]Detection{det(320, deadY)}, false},
				{[]Detection{det(320, entryY)}, false},
				{[]Detection{det(320, deadY + 10)}, false},
			},
		},
		{
			name: "enters and leaves on the same side",
			cycles: []cycle{
				{[]Detection{det(320, farY)}, false},
				{[]Detection{det(320, entryY)}, false},
				{[]Detection{det(320, farY)}, false},
				{nil, false},
			},
		},
		{
			name: "exit without prior entry",
			cycles: []cycle{
				{[]Detection{det(320, exitY)}, false},
				{[]Detection{det(320, exitY)}, false},
			},
		},
		{
			name: "entry and exit in the same first frame",
			cycles: []cycle{
				{[]Detection{det(100, exitY), det(300, entryY)}, false},
				{[]Detection{det(300, exitY)}, true},
			},
		},
		{
			name: "second object arming during a confirmation",
			cycles: []cycle{
				{[]Detection{det(100, entryY)}, false},
				{[]Detection{det(100, exitY), det(300, entryY)}, true},
				{[]Detection{det(300, deadY)}, false},
				{[]Detection{det(300, exitY)}, true},
			},
		},
		{
			name: "degenerate exit is skipped",
			cycles: []cycle{
				{[]Detection{det(320, entryY)}, false},
				{[]Detection{{Centroid: Point{320, exitY}, BBox: Rect{W: 0, H: 10}, Area: 10}}, false},
				{[]Detection{det(320, exitY)}, true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCrossingDetector(testBeam, 0, 0)
			require.NoError(t, err)
			for i, cy := range tt.cycles {
				_, got := c.Observe(t0.Add(time.Duration(i)*100*time.Millisecond), cy.dets)
				assert.Equal(t, cy.want, got, "cycle %d", i)
			}
		})
	}
}

func TestCrossingDetector_MinInterval(t *testing.T) {
	c, err := NewCrossingDetector(testBeam, 2*time.Second, 0)
	require.NoError(t, err)

	c.Observe(t0, []Detection{det(320, entryY)})
	_, ok := c.Observe(t0.Add(100*time.Millisecond), []Detection{det(320, exitY)})
	require.True(t, ok)

	// A second traversal inside the interval is dropped and disarms.
	c.Observe(t0.Add(200*time.Millisecond), []Detection{det(320, entryY)})
	_, ok = c.Observe(t0.Add(300*time.Millisecond), []Detection{det(320, exitY)})
	assert.False(t, ok)
	assert.False(t, c.Armed())
	assert.Equal(t, uint64(1), c.Suppressed())

	// The interval is measured from the last confirmed crossing.
	c.Observe(t0.Add(2*time.Second), []Detection{det(320, entryY)})
	_, ok = c.Observe(t0.Add(2100*time.Millisecond), []Detection{det(320, exitY)})
	assert.True(t, ok)
}

func TestCrossingDetector_ArmingExpires(t *testing.T) {
	type step struct {
		at   time.Duration
		dets []Detection
	}
	tests := []struct {
		name  string
		steps []step
		want  bool
	}{
		{
			name: "entry then retreat",
			steps: []step{
				{0, []Detection{det(320, entryY)}},
				{100 * time.Millisecond, []Detection{det(320, farY)}},
				{31 * time.Minute, []Detection{det(320, exitY)}},
			},
			want: false,
		},
		{
			name: "stalled in the dead zone",
			steps: []step{
				{0, []Detection{det(320, entryY)}},
				{2 * time.Second, []Detection{det(320, deadY)}},
				{4 * time.Second, []Detection{det(320, deadY)}},
				{6 * time.Second, []Detection{det(320, deadY)}},
				{6100 * time.Millisecond, []Detection{det(320, exitY)}},
			},
			want: true,
		},
		{
			name: "missed frames inside the timeout",
			steps: []step{
				{0, []Detection{det(320, entryY)}},
				{time.Second, nil},
				{2 * time.Second, []Detection{det(320, exitY)}},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCrossingDetector(testBeam, 0, 3*time.Second)
			require.NoError(t, err)
			var got bool
			for _, st := range tt.steps {
				_, got = c.Observe(t0.Add(st.at), st.dets)
			}
			assert.Equal(t, tt.want, got)
			assert.False(t, c.Armed())
		})
	}

	_, err := NewCrossingDetector(testBeam, 0, -time.Second)
	assert.Error(t, err)
}

func TestCrossingDetector_FirstQualifyingDetectionWins(t *testing.T) {
	c, err := NewCrossingDetector(testBeam, 0, 0)
	require.NoError(t, err)

	c.Observe(t0, []Detection{det(320, entryY)})
	ev, ok := c.Observe(t0.Add(time.Second), []Detection{
		det(100, farY),
		det(200, exitY),
		det(400, exitY),
	})
	require.True(t, ok)
	assert.Equal(t, 1, ev.Index)
	assert.Equal(t, Point{200, exitY}, ev.Detection.Centroid)
	assert.Equal(t, t0.Add(time.Second), ev.Time)
}

func TestCrossingDetector_SkipsDegenerateGeometry(t *testing.T) {
	c, err := NewCrossingDetector(testBeam, 0, 0)
	require.NoError(t, err)

	bad := []Detection{
		{Centroid: Point{320, entryY}, BBox: Rect{W: 10, H: 10}, Area: 0},
		{Centroid: Point{320, entryY}, BBox: Rect{W: 10, H: -1}, Area: 50},
		{Centroid: Point{math.NaN(), entryY}, BBox: Rect{W: 10, H: 10}, Area: 50},
		{Centroid: Point{320, math.Inf(1)}, BBox: Rect{W: 10, H: 10}, Area: 50},
	}
	_, ok := c.Observe(t0, bad)
	assert.False(t, ok)
	assert.False(t, c.Armed(), "degenerate entries must not arm")
	assert.Equal(t, uint64(len(bad)), c.Skipped())
}
