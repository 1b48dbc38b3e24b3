package vision

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cbf-labs/anacase/internal/counting"
)

// ReplayRecord is one line of a detection fixture.
type ReplayRecord struct {
	Detections []counting.Detection `json:"detections"`
}

// ReplaySource plays back recorded detections, one record per cycle. Frame
// times come from the driver clock, not the fixture.
type ReplaySource struct {
	mu      sync.Mutex
	records []ReplayRecord
	next    int
	seq     uint64
	loop    bool
}

// LoadReplay reads a JSON-lines fixture. Blank lines are ignored. With loop
// set the fixture restarts at EOF.
func LoadReplay(path string, loop bool) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return ReadReplay(f, loop)
}

// ReadReplay parses a JSON-lines fixture from r.
func ReadReplay(r io.Reader, loop bool) (*ReplaySource, error) {
	var records []ReplayRecord
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scan.Scan() {
		line++
		b := scan.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var rec ReplayRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("fixture line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("fixture has no records")
	}
	return &ReplaySource{records: records, loop: loop}, nil
}

// Len is the number of records in the fixture.
func (r *ReplaySource) Len() int { return len(r.records) }

func (r *ReplaySource) Next(ctx context.Context, now time.Time) (counting.Frame, error) {
	if err := ctx.Err(); err != nil {
		return counting.Frame{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.records) {
		if !r.loop {
			return counting.Frame{}, io.EOF
		}
		r.next = 0
	}
	rec := r.records[r.next]
	r.next++
	r.seq++
	return counting.Frame{Seq: r.seq, Time: now, Detections: rec.Detections}, nil
}
