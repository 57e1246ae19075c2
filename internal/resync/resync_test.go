package resync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowpilot-ai/flowpilot/internal/kb"
	"github.com/flowpilot-ai/flowpilot/internal/vector"
)

func buildFixtures(t *testing.T, extraRef string) (*kb.Store, *vector.Index) {
	t.Helper()
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "pieces.db")
	pieces := []kb.ExportPiece{
		{
			Name:        "slack",
			DisplayName: "Slack",
			Description: "Messaging",
			Actions:     []kb.ExportOperation{{Name: "send_message", DisplayName: "Send Message", Description: "Send"}},
		},
	}
	if err := kb.BuildDatabase(context.Background(), dbPath, pieces); err != nil {
		t.Fatalf("BuildDatabase: %v", err)
	}
	store, err := kb.Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	chunks := []map[string]interface{}{
		{"id": "piece:slack", "ref": "piece:slack", "title": "Slack", "text": "slack", "embedding": []float64{1, 0}},
		{"id": "action:slack/send_message", "ref": "action:slack/send_message", "title": "Send", "text": "send", "embedding": []float64{0, 1}},
	}
	if extraRef != "" {
		chunks = append(chunks, map[string]interface{}{
			"id": extraRef, "ref": extraRef, "title": "Stale", "text": "stale", "embedding": []float64{1, 1},
		})
	}
	raw, _ := json.Marshal(map[string]interface{}{"model": "test-embed", "dimension": 2, "chunks": chunks})
	indexPath := filepath.Join(dir, "index.json")
	if err := os.WriteFile(indexPath, raw, 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	index, err := vector.Load(indexPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store, index
}

func TestCheckInSync(t *testing.T) {
	store, index := buildFixtures(t, "")
	checker, err := NewChecker(store, index, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	report, err := checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Drifted() {
		t.Fatalf("expected no drift, got %+v", report)
	}
	if report.Pieces != 1 || report.Actions != 1 || report.IndexChunks != 2 || report.IndexRefs != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCheckDetectsDanglingRef(t *testing.T) {
	store, index := buildFixtures(t, "piece:asana")
	checker, err := NewChecker(store, index, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	report, err := checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.Drifted() {
		t.Fatalf("expected drift for stale reference")
	}
	if len(report.MissingRefs) != 1 || report.MissingRefs[0] != "piece:asana" {
		t.Fatalf("unexpected missing refs: %v", report.MissingRefs)
	}
}

func TestNewCheckerRejectsBadCron(t *testing.T) {
	store, index := buildFixtures(t, "")
	if _, err := NewChecker(store, index, "not a cron spec"); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}
