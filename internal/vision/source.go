// Package vision supplies per-cycle frames to the counting engine. The
// real camera pipeline is outside this module; the station runs from a
// recorded detection fixture or a synthetic conveyor.
package vision

import (
	"context"
	"time"

	"github.com/cbf-labs/anacase/internal/counting"
)

// Source produces the frame for one processing cycle.
type Source interface {
	// Next returns the frame observed at now. io.EOF means the source is
	// exhausted.
	Next(ctx context.Context, now time.Time) (counting.Frame, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, now time.Time) (counting.Frame, error)

func (f SourceFunc) Next(ctx context.Context, now time.Time) (counting.Frame, error) {
	return f(ctx, now)
}
