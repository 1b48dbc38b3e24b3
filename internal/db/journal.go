package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/monitoring"
)

// EventRecord is one journal row.
type EventRecord struct {
	ID        string `json:"id"`
	StationID string `json:"station_id"`
	counting.Event
}

// RecordEvent appends ev to the journal and returns its generated id.
func (db *DB) RecordEvent(stationID string, ev counting.Event) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO events (
			event_id, station_id, kind, ts_unix_nano, count, generation, samples, review_id, reason, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, stationID, string(ev.Kind), ev.Time.UnixNano(), ev.Count, int64(ev.Generation), ev.Samples,
		nullString(ev.ReviewID), nullString(string(ev.Reason)), nullString(ev.Detail),
	)
	if err != nil {
		return "", fmt.Errorf("record %s event: %w", ev.Kind, err)
	}
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecentEvents returns up to limit events, newest first. An empty kind
// matches every kind.
func (db *DB) RecentEvents(limit int, kind counting.EventKind) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT event_id, station_id, kind, ts_unix_nano, count, generation, samples,
		       COALESCE(review_id, ''), COALESCE(reason, ''), COALESCE(detail, '')
		FROM events
		WHERE (? = '' OR kind = ?)
		ORDER BY ts_unix_nano DESC, id DESC
		LIMIT ?`, string(kind), string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			r          EventRecord
			kindStr    string
			tsNano     int64
			generation int64
			reason     string
		)
		if err := rows.Scan(&r.ID, &r.StationID, &kindStr, &tsNano, &r.Count, &generation, &r.Samples,
			&r.ReviewID, &reason, &r.Detail); err != nil {
			return nil, err
		}
		r.Kind = counting.EventKind(kindStr)
		r.Time = time.Unix(0, tsNano).UTC()
		r.Generation = uint64(generation)
		r.Reason = counting.CloseReason(reason)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Bucket is the number of crossings starting at Start.
type Bucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// CrossingBuckets counts crossings in [since, until) in fixed-width buckets.
// Empty buckets are included so the result always spans the range.
func (db *DB) CrossingBuckets(since, until time.Time, width time.Duration) ([]Bucket, error) {
	if width <= 0 || !until.After(since) {
		return nil, fmt.Errorf("invalid bucket range %s..%s by %s", since, until, width)
	}
	n := int((until.Sub(since) + width - 1) / width)
	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Start = since.Add(time.Duration(i) * width).UTC()
	}

	rows, err := db.Query(`
		SELECT (ts_unix_nano - ?) / ?, COUNT(*)
		FROM events
		WHERE kind = ? AND ts_unix_nano >= ? AND ts_unix_nano < ?
		GROUP BY 1`,
		since.UnixNano(), width.Nanoseconds(), string(counting.EventCrossing), since.UnixNano(), until.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var idx int64
		var count int
		if err := rows.Scan(&idx, &count); err != nil {
			return nil, err
		}
		if idx >= 0 && idx < int64(n) {
			buckets[idx].Count = count
		}
	}
	return buckets, rows.Err()
}

// Consume journals every event from events until the channel closes or ctx
// is done. Write failures are logged, passed to onErr when it is set, and do
// not stop the loop.
func (db *DB) Consume(ctx context.Context, stationID string, events <-chan counting.Event, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			// Drain what the engine already published so shutdown events land.
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					db.record(stationID, ev, onErr)
				default:
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			db.record(stationID, ev, onErr)
		}
	}
}

func (db *DB) record(stationID string, ev counting.Event, onErr func(error)) {
	if _, err := db.RecordEvent(stationID, ev); err != nil {
		monitoring.Logf("❌ Error writing journal: %v", err)
		if onErr != nil {
			onErr(err)
		}
	}
}
