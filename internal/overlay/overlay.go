// Package overlay draws the operator display: the live or frozen frame, the
// beam, the counter bar and the optional stats page.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cbf-labs/anacase/internal/actuator"
	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/version"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 480

	barHeight = 72
)

var (
	background = color.RGBA{R: 24, G: 24, B: 24, A: 255}
	barColour  = color.RGBA{R: 0, G: 0, B: 0, A: 200}
	pageColour = color.RGBA{R: 0, G: 0, B: 0, A: 170}
	white      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	grey       = color.RGBA{R: 170, G: 170, B: 170, A: 255}
	yellow     = color.RGBA{R: 255, G: 210, B: 0, A: 255}
	alarmRed   = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	countGreen = color.RGBA{R: 40, G: 200, B: 80, A: 255}
)

// Renderer draws snapshots at a fixed size.
type Renderer struct {
	Width     int
	Height    int
	StationID string
}

// New returns a renderer of the default display size.
func New(stationID string) *Renderer {
	return &Renderer{Width: DefaultWidth, Height: DefaultHeight, StationID: stationID}
}

// Render draws snap over frame. frame may be nil; when the review alarm is
// active it should be the frozen review frame. In RUN mode the live frame and
// the beam are left out and only a frozen review frame is shown.
func (r *Renderer) Render(snap counting.Snapshot, beam counting.Beam, frame image.Image) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	view := snap.Mode == counting.ModeView
	if frame != nil && (view || snap.AlarmActive) {
		draw.Draw(img, img.Bounds(), frame, frame.Bounds().Min, draw.Src)
	}

	counted := snap.Outputs.Lamp == actuator.LampGreen
	switch {
	case view && counted:
		drawLine(img, beam.A, beam.B, countGreen)
	case view:
		drawLine(img, beam.A, beam.B, yellow)
	case counted:
		// RUN has no beam; flash the top edge instead.
		fill(img, image.Rect(0, 0, r.Width, 6), countGreen)
	}

	if snap.AlarmActive {
		drawBorder(img, 6, alarmRed)
		text(img, r.Width/2, 54, white, "SNAPSHOT")
		if snap.Review != nil {
			text(img, r.Width/2, 72, white, fmt.Sprintf("bag %03d", snap.Review.Count))
		}
	}

	if snap.StatsPage {
		r.drawStatsPage(img, snap)
	}
	r.drawBar(img, snap)
	return img
}

func (r *Renderer) drawBar(img *image.RGBA, snap counting.Snapshot) {
	top := r.Height - barHeight
	fill(img, image.Rect(0, top, r.Width, r.Height), barColour)

	cols := []struct{ label, value string }{
		{"bag counter", fmt.Sprintf("%03d", snap.Count)},
		{"bag selected", fmt.Sprintf("%03d", snap.Sampled)},
		{"selected %", fmt.Sprintf("%4.1f", snap.Percentage)},
		{"mode", string(snap.Mode)},
		{"time", snap.Time.Format("15:04:05")},
	}
	step := r.Width / len(cols)
	for i, c := range cols {
		x := 20 + i*step
		text(img, x, top+22, grey, c.label)
		text(img, x, top+46, white, c.value)
	}
	footer := version.Banner()
	if r.StationID != "" {
		footer = r.StationID + " " + footer
	}
	text(img, r.Width-textWidth(footer)-10, r.Height-6, grey, footer)
}

func (r *Renderer) drawStatsPage(img *image.RGBA, snap counting.Snapshot) {
	fill(img, image.Rect(30, 60, r.Width-30, r.Height-barHeight-20), pageColour)

	var counts, reviews [3]int
	for i, w := range snap.Windows {
		if i < 3 {
			counts[i], reviews[i] = w.Counts, w.Reviews
		}
	}
	first := "--/-- --:--:--"
	if snap.FirstCount != nil {
		first = snap.FirstCount.Format("02/01 15:04:05")
	}

	lines := []struct {
		y     int
		c     color.Color
		value string
	}{
		{90, grey, "bag counter on last 5/15/60 min."},
		{110, white, fmt.Sprintf("%03d/%03d/%03d", counts[0], counts[1], counts[2])},
		{150, grey, "bag selected on last 5/15/60 min."},
		{170, white, fmt.Sprintf("%03d/%03d/%03d", reviews[0], reviews[1], reviews[2])},
		{210, grey, "first bag counter started at"},
		{230, white, first},
		{270, grey, "interval mean / stddev"},
		{290, white, fmt.Sprintf("%.1fs / %.1fs", snap.MeanInterval, snap.StdDevInterval)},
	}
	for _, l := range lines {
		text(img, 50, l.y, l.c, l.value)
	}
	text(img, r.Width-200, 90, grey, "60min rate")
	text(img, r.Width-200, 110, white, fmt.Sprintf("%4.1f%%", snap.Rolling60))

	drawSparkline(img, image.Rect(r.Width-260, 140, r.Width-50, 290), snap.PerMinute)
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func text(img *image.RGBA, x, y int, c color.Color, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Round()
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

func drawBorder(img *image.RGBA, width int, c color.Color) {
	b := img.Bounds()
	fill(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width), c)
	fill(img, image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y), c)
	fill(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y), c)
	fill(img, image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y), c)
}

// drawLine plots a 3px-wide segment by sampling along its length.
func drawLine(img *image.RGBA, a, b counting.Point, c color.RGBA) {
	n := int(math.Ceil(math.Hypot(b.X-a.X, b.Y-a.Y)))
	for i := 0; i <= n; i++ {
		t := 0.0
		if n > 0 {
			t = float64(i) / float64(n)
		}
		x := int(math.Round(a.X + t*(b.X-a.X)))
		y := int(math.Round(a.Y + t*(b.Y-a.Y)))
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if (image.Point{X: x + dx, Y: y + dy}).In(img.Bounds()) {
					img.SetRGBA(x+dx, y+dy, c)
				}
			}
		}
	}
}

// drawSparkline draws per-minute counts as bars inside r.
func drawSparkline(img *image.RGBA, r image.Rectangle, values []int) {
	if len(values) == 0 {
		return
	}
	peak := 1
	for _, v := range values {
		peak = max(peak, v)
	}
	w := max(r.Dx()/len(values), 1)
	for i, v := range values {
		h := v * r.Dy() / peak
		x := r.Min.X + i*w
		fill(img, image.Rect(x, r.Max.Y-h, x+w, r.Max.Y), countGreen)
	}
}
