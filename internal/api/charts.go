package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/cbf-labs/anacase/internal/httputil"
)

var barGreen = color.RGBA{R: 40, G: 160, B: 80, A: 255}

// showHistogram plots counts per minute over the last hour as a PNG.
func (s *Server) showHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.engine.Snapshot(s.clock.Now())
	values := make(plotter.Values, len(snap.PerMinute))
	for i, v := range snap.PerMinute {
		values[i] = float64(v)
	}
	if len(values) == 0 {
		values = plotter.Values{0}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Objects per minute (count %03d, sampled %.1f%%)", snap.Count, snap.Percentage)
	p.X.Label.Text = "Minute (oldest to now)"
	p.Y.Label.Text = "Objects"

	bars, err := plotter.NewBarChart(values, vg.Points(6))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to build chart: %v", err))
		return
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = barGreen
	p.Add(bars)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// AttachDebugRoutes mounts the journal crossing chart at /debug/counts.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("counts", "Crossings per bucket from the audit journal", s.handleCountsChart)
}

// handleCountsChart renders journal crossings as an HTML bar chart. Query
// parameters: hours (default 8) and bucket in minutes (default 15).
func (s *Server) handleCountsChart(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		httputil.ServiceUnavailable(w, "Audit journal not configured")
		return
	}
	hours, err := positiveParam(r, "hours", 8, 24*31)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	bucketMin, err := positiveParam(r, "bucket", 15, 24*60)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	width := time.Duration(bucketMin) * time.Minute
	until := s.clock.Now().Truncate(width).Add(width)
	since := until.Add(-time.Duration(hours) * time.Hour)
	buckets, err := s.journal.CrossingBuckets(since, until, width)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to read journal: %v", err))
		return
	}

	x := make([]string, len(buckets))
	y := make([]opts.BarData, len(buckets))
	total := 0
	for i, b := range buckets {
		x[i] = b.Start.Local().Format("01/02 15:04")
		y[i] = opts.BarData{Value: b.Count}
		total += b.Count
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Station counts", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Crossings",
			Subtitle: fmt.Sprintf("%d in the last %dh, %d min buckets", total, hours, bucketMin),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("crossings", y)

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func positiveParam(r *http.Request, name string, def, upper int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > upper {
		return 0, fmt.Errorf("Invalid '%s' parameter", name)
	}
	return n, nil
}
