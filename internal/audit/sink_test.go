package audit_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kaben/fusion-core/internal/audit"
	"github.com/kaben/fusion-core/internal/spatial"
)

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM predictions").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSinkCommitsEveryNRows(t *testing.T) {
	// A file-backed DB: the sink closes its connection on Close, which
	// would destroy a shared in-memory DB before countRows can read it.
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := audit.Open(context.Background(), path, 2, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sink.Record(audit.Row{T: 1, Q: spatial.Identity})
	sink.Record(audit.Row{T: 2, Q: spatial.Identity})
	sink.Record(audit.Row{T: 3, Q: spatial.Identity})
	sink.Close()

	if n := countRows(t, path); n != 3 {
		t.Fatalf("row count = %d, want 3", n)
	}
}

func TestSinkFlushesPartialBatchOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := audit.Open(context.Background(), path, 100, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sink.Record(audit.Row{T: 1, Q: spatial.Identity})
	sink.Close() // far fewer than commitEvery=100

	if n := countRows(t, path); n != 1 {
		t.Fatalf("row count = %d, want 1 (flush on shutdown)", n)
	}
}

func TestSinkRecordDoesNotBlockOnFullQueue(t *testing.T) {
	path := "file:" + t.Name() + "?mode=memory&cache=shared"
	sink, err := audit.Open(context.Background(), path, 1_000_000, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sink.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			sink.Record(audit.Row{T: float64(i), Q: spatial.Identity})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Record blocked on a full queue")
	}
}
