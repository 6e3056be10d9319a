package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/psilva81/inferq/pkg/models"
)

func finishedSnapshot(id string) models.RequestSnapshot {
	started := time.Now().Add(-2 * time.Second)
	completed := time.Now().Add(-1 * time.Second)
	return models.RequestSnapshot{
		ID:                id,
		UserID:            "alice",
		Payload:           "transcripts/2026-07-01.txt",
		Metadata:          map[string]string{"team": "support"},
		Priority:          models.PriorityHigh,
		Status:            models.StatusCompleted,
		WorkerID:          "worker-1",
		CreatedAt:         time.Now().Add(-3 * time.Second),
		StartedAt:         &started,
		CompletedAt:       &completed,
		Boosts:            1,
		WaitSeconds:       1.0,
		ProcessingSeconds: 1.0,
		Result: &models.AnalysisResult{
			Summary:  "customer asked for a refund",
			Model:    "gpt-4o-mini",
			Counters: map[string]float64{"total_tokens": 42},
		},
	}
}

func TestSQLiteArchiveStoresFinishedRequests(t *testing.T) {
	tmpDB := "/tmp/test_archive_store.db"
	defer os.Remove(tmpDB)
	defer os.Remove(tmpDB + "-shm")
	defer os.Remove(tmpDB + "-wal")

	archive, err := NewSQLiteArchive(tmpDB)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer archive.Close()

	if err := archive.Store(finishedSnapshot("req-1")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// A timed-out request never ran, so its execution fields are empty
	expired := models.RequestSnapshot{
		ID:        "req-2",
		UserID:    "bob",
		Payload:   "transcripts/2026-07-02.txt",
		Priority:  models.PriorityLow,
		Status:    models.StatusTimedOut,
		CreatedAt: time.Now().Add(-time.Hour),
		Error:     "queue timeout exceeded",
	}
	if err := archive.Store(expired); err != nil {
		t.Fatalf("Store of expired request failed: %v", err)
	}

	count, err := archive.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 archived requests, got %d", count)
	}

	var (
		payload, priority, status, workerID string
		metadataJSON, resultJSON            string
	)
	err = archive.db.QueryRow(`
		SELECT payload, priority, status, worker_id, metadata, result
		FROM archived_requests WHERE id = ?
	`, "req-1").Scan(&payload, &priority, &status, &workerID, &metadataJSON, &resultJSON)
	if err != nil {
		t.Fatalf("Failed to read back req-1: %v", err)
	}
	if payload != "transcripts/2026-07-01.txt" {
		t.Errorf("Expected payload transcripts/2026-07-01.txt, got %s", payload)
	}
	if priority != "high" {
		t.Errorf("Expected priority high, got %s", priority)
	}
	if status != "completed" {
		t.Errorf("Expected status completed, got %s", status)
	}
	if workerID != "worker-1" {
		t.Errorf("Expected worker-1, got %s", workerID)
	}

	var metadata map[string]string
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		t.Fatalf("Failed to unmarshal metadata: %v", err)
	}
	if metadata["team"] != "support" {
		t.Errorf("Expected metadata team=support, got %v", metadata)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}
	if result.Summary != "customer asked for a refund" {
		t.Errorf("Unexpected result summary: %s", result.Summary)
	}
	if result.Counters["total_tokens"] != 42 {
		t.Errorf("Expected total_tokens 42, got %v", result.Counters)
	}

	var startedAt, completedAt sql.NullTime
	var errMsg string
	err = archive.db.QueryRow(`
		SELECT started_at, completed_at, error
		FROM archived_requests WHERE id = ?
	`, "req-2").Scan(&startedAt, &completedAt, &errMsg)
	if err != nil {
		t.Fatalf("Failed to read back req-2: %v", err)
	}
	if startedAt.Valid || completedAt.Valid {
		t.Error("Expected NULL started_at and completed_at for request that never ran")
	}
	if errMsg != "queue timeout exceeded" {
		t.Errorf("Expected error message, got %q", errMsg)
	}
}

func TestSQLiteArchiveIgnoresDuplicates(t *testing.T) {
	tmpDB := "/tmp/test_archive_dup.db"
	defer os.Remove(tmpDB)
	defer os.Remove(tmpDB + "-shm")
	defer os.Remove(tmpDB + "-wal")

	archive, err := NewSQLiteArchive(tmpDB)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer archive.Close()

	snap := finishedSnapshot("req-1")
	if err := archive.Store(snap); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	snap.Payload = "something-else.txt"
	if err := archive.Store(snap); err != nil {
		t.Fatalf("Duplicate store failed: %v", err)
	}

	count, err := archive.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 archived request after duplicate store, got %d", count)
	}

	var payload string
	if err := archive.db.QueryRow(`SELECT payload FROM archived_requests WHERE id = ?`, "req-1").Scan(&payload); err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	if payload != "transcripts/2026-07-01.txt" {
		t.Errorf("Expected first write to win, got payload %s", payload)
	}
}

// TestSQLiteArchiveConcurrentStores tests that concurrent archival doesn't
// cause database locks
func TestSQLiteArchiveConcurrentStores(t *testing.T) {
	tmpDB := "/tmp/test_archive_concurrent.db"
	defer os.Remove(tmpDB)
	defer os.Remove(tmpDB + "-shm")
	defer os.Remove(tmpDB + "-wal")

	archive, err := NewSQLiteArchive(tmpDB)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer archive.Close()

	numRequests := 20
	var wg sync.WaitGroup
	errCh := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := archive.Store(finishedSnapshot(fmt.Sprintf("req-%d", idx))); err != nil {
				errCh <- fmt.Errorf("store %d failed: %w", idx, err)
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Concurrent store error: %v", err)
	}

	count, err := archive.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != numRequests {
		t.Errorf("Expected %d archived requests, got %d", numRequests, count)
	}
}

func TestSQLiteArchiveSurvivesReopen(t *testing.T) {
	tmpDB := "/tmp/test_archive_reopen.db"
	defer os.Remove(tmpDB)
	defer os.Remove(tmpDB + "-shm")
	defer os.Remove(tmpDB + "-wal")

	archive, err := NewSQLiteArchive(tmpDB)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	if err := archive.Store(finishedSnapshot("req-1")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := archive.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteArchive(tmpDB)
	if err != nil {
		t.Fatalf("Failed to reopen archive: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count()
	if err != nil {
		t.Fatalf("Count after reopen failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 archived request after reopen, got %d", count)
	}
}

func TestNewDefaultsToSQLite(t *testing.T) {
	tmpDB := "/tmp/test_archive_factory.db"
	defer os.Remove(tmpDB)
	defer os.Remove(tmpDB + "-shm")
	defer os.Remove(tmpDB + "-wal")

	archive, err := New(Config{Path: tmpDB})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer archive.Close()

	if _, ok := archive.(*SQLiteArchive); !ok {
		t.Errorf("Expected *SQLiteArchive, got %T", archive)
	}
	if err := archive.HealthCheck(); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "mysql"})
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("Expected ErrUnsupportedBackend, got %v", err)
	}
}
