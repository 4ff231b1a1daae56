// Package audit is the optional persistent audit sink of spec.md §6/§9:
// one row per accepted IMU prediction, all raw and derived fields,
// written through database/sql with the pure-Go modernc.org/sqlite
// driver (grounded on banshee-data-velocity.report/db/db.go and
// internal/lidar's store tests, which open it as driver name "sqlite").
//
// Commit policy is "commit every N rows, flush on shutdown" — resolving
// the suspicious commit-gate open question from the distilled spec by
// not replicating it (see DESIGN.md).
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kaben/fusion-core/internal/spatial"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	t          DOUBLE PRIMARY KEY,
	dt         DOUBLE,
	accel_x    DOUBLE, accel_y DOUBLE, accel_z DOUBLE,
	gyro_x     DOUBLE, gyro_y  DOUBLE, gyro_z  DOUBLE,
	p_x        DOUBLE, p_y     DOUBLE, p_z     DOUBLE,
	v_x        DOUBLE, v_y     DOUBLE, v_z     DOUBLE,
	q_w        DOUBLE, q_x     DOUBLE, q_y     DOUBLE, q_z DOUBLE,
	ba_x       DOUBLE, ba_y    DOUBLE, ba_z    DOUBLE,
	bg_x       DOUBLE, bg_y    DOUBLE, bg_z    DOUBLE,
	g_x        DOUBLE, g_y     DOUBLE, g_z     DOUBLE
);
`

// Row is one audited prediction: the raw sample plus the predictor's
// derived state after integrating it (spec.md §6 "all raw and derived
// fields").
type Row struct {
	T, Dt       float64
	Accel, Gyro spatial.Vec3
	P, V        spatial.Vec3
	Q           spatial.Quat
	Ba, Bg, G   spatial.Vec3
}

// dropWarnInterval rate-limits the overflow warning, matching the
// ingress buffers' policy (spec.md §7/§9).
const dropWarnInterval = 1 * time.Second

// Sink feeds rows from the predictor's hot path to a dedicated
// goroutine over a bounded, non-blocking channel (spec.md §9): Record
// never blocks the hot path, and on overflow it evicts the oldest
// queued row to make room for the new one.
type Sink struct {
	rows     chan Row
	commitN  int
	lastWarn time.Time
	dropped  uint64
	done     chan struct{}
}

// Open creates the predictions table (if absent) and starts the sink
// goroutine. commitEvery is the "commit every N rows" batch size;
// queueCap bounds the channel between the hot path and the sink.
func Open(ctx context.Context, path string, commitEvery, queueCap int) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	s := &Sink{
		rows:    make(chan Row, queueCap),
		commitN: commitEvery,
		done:    make(chan struct{}),
	}
	go s.run(ctx, db)
	return s, nil
}

// Record enqueues a row without blocking. On overflow the oldest queued
// row is evicted to make room for r and a rate-limited warning is
// logged.
func (s *Sink) Record(r Row) {
	select {
	case s.rows <- r:
		return
	default:
	}
	// Queue full: evict the oldest queued row, then enqueue r. If the
	// slot is still taken (or the queue has no capacity), r is the row lost.
	select {
	case <-s.rows:
	default:
	}
	select {
	case s.rows <- r:
	default:
	}
	s.dropped++
	if time.Since(s.lastWarn) >= dropWarnInterval {
		s.lastWarn = time.Now()
		slog.Warn("audit: queue full, dropping oldest row", "total_dropped", s.dropped)
	}
}

// Close stops accepting new rows and waits for the sink goroutine to
// flush whatever is pending.
func (s *Sink) Close() {
	close(s.rows)
	<-s.done
}

func (s *Sink) run(ctx context.Context, db *sql.DB) {
	defer close(s.done)
	defer db.Close()

	const insertSQL = `INSERT OR REPLACE INTO predictions (
		t, dt, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z,
		p_x, p_y, p_z, v_x, v_y, v_z, q_w, q_x, q_y, q_z,
		ba_x, ba_y, ba_z, bg_x, bg_y, bg_z, g_x, g_y, g_z
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("audit: failed to open transaction", "error", err)
		return
	}
	pending := 0

	commitAndReopen := func() {
		if err := tx.Commit(); err != nil {
			slog.Error("audit: commit failed", "error", err)
		}
		pending = 0
		if next, err := db.BeginTx(ctx, nil); err != nil {
			slog.Error("audit: failed to reopen transaction", "error", err)
			tx = nil
		} else {
			tx = next
		}
	}

	for r := range s.rows {
		if tx == nil {
			continue
		}
		_, err := tx.ExecContext(ctx, insertSQL,
			r.T, r.Dt,
			r.Accel.X, r.Accel.Y, r.Accel.Z, r.Gyro.X, r.Gyro.Y, r.Gyro.Z,
			r.P.X, r.P.Y, r.P.Z, r.V.X, r.V.Y, r.V.Z,
			r.Q.Real, r.Q.Imag, r.Q.Jmag, r.Q.Kmag,
			r.Ba.X, r.Ba.Y, r.Ba.Z, r.Bg.X, r.Bg.Y, r.Bg.Z, r.G.X, r.G.Y, r.G.Z,
		)
		if err != nil {
			slog.Error("audit: insert failed", "error", err)
			continue
		}
		pending++
		if pending >= s.commitN {
			commitAndReopen()
		}
	}
	// Flush on shutdown (spec.md §9 open question resolution): commit
	// whatever is pending rather than leaving it in a never-committed
	// transaction.
	if tx != nil {
		if pending > 0 {
			if err := tx.Commit(); err != nil {
				slog.Error("audit: final commit failed", "error", err)
			}
		} else {
			_ = tx.Rollback()
		}
	}
}
