package kb

import (
	"context"
	"path/filepath"
	"testing"
)

func buildTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pieces.db")
	pieces := []ExportPiece{
		{
			Name:        "slack",
			DisplayName: "Slack",
			Description: "Team messaging and collaboration platform",
			Categories:  []string{"communication"},
			Version:     "0.5.0",
			Actions: []ExportOperation{
				{
					Name:        "send_message",
					DisplayName: "Send Message",
					Description: "Send a message to a channel",
					Properties: []ExportProperty{
						{Key: "channel", Type: "short_text", Required: true, Description: "Channel to post to"},
						{Key: "text", Type: "long_text", Required: true},
					},
				},
			},
			Triggers: []ExportOperation{
				{Name: "new_message", DisplayName: "New Message", Description: "Fires when a message is posted"},
			},
		},
		{
			Name:        "gmail",
			DisplayName: "Gmail",
			Description: "Send and receive email through Google",
			Actions: []ExportOperation{
				{Name: "send_email", DisplayName: "Send Email", Description: "Send an email message"},
			},
		},
	}
	if err := BuildDatabase(context.Background(), dbPath, pieces); err != nil {
		t.Fatalf("BuildDatabase: %v", err)
	}
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBuildDatabaseReingestReplacesProperties(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pieces.db")
	ctx := context.Background()

	first := []ExportPiece{{
		Name:        "slack",
		DisplayName: "Slack",
		Description: "Messaging",
		Actions: []ExportOperation{{
			Name:        "send_message",
			DisplayName: "Send Message",
			Description: "Send",
			Properties: []ExportProperty{
				{Key: "channel", Type: "short_text", Required: true},
				{Key: "text", Type: "long_text", Required: true},
			},
		}},
	}}
	if err := BuildDatabase(ctx, dbPath, first); err != nil {
		t.Fatalf("first BuildDatabase: %v", err)
	}

	second := []ExportPiece{{
		Name:        "gmail",
		DisplayName: "Gmail",
		Description: "Email",
		Actions: []ExportOperation{{
			Name:        "send_email",
			DisplayName: "Send Email",
			Description: "Send",
			Properties: []ExportProperty{
				{Key: "to", Type: "short_text", Required: true},
			},
		}},
	}}
	if err := BuildDatabase(ctx, dbPath, second); err != nil {
		t.Fatalf("second BuildDatabase: %v", err)
	}

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	piece, ok, err := store.PieceDetails(ctx, "gmail")
	if err != nil || !ok {
		t.Fatalf("PieceDetails: ok=%v err=%v", ok, err)
	}
	if len(piece.Actions) != 1 {
		t.Fatalf("unexpected actions: %+v", piece.Actions)
	}
	props := piece.Actions[0].Properties
	if len(props) != 1 || props[0].Key != "to" {
		t.Fatalf("properties from the previous ingest leaked into the new operation: %+v", props)
	}

	counts, err := store.EntityCounts(ctx)
	if err != nil {
		t.Fatalf("EntityCounts: %v", err)
	}
	if counts.Pieces != 1 || counts.Actions != 1 || counts.Triggers != 0 {
		t.Fatalf("old content survived the re-ingest: %+v", counts)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.db")); err == nil {
		t.Fatalf("expected error for missing knowledge base")
	}
}

func TestLookupExactNameFirst(t *testing.T) {
	store := buildTestStore(t)

	records, err := store.Lookup(context.Background(), "Slack")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(records) == 0 {
		t.Fatalf("expected results for slack")
	}
	if records[0].Kind != KindPiece || records[0].Name != "slack" {
		t.Fatalf("expected exact piece match first, got %+v", records[0])
	}
	if records[0].ActionCount != 1 || records[0].TriggerCount != 1 {
		t.Fatalf("unexpected counts: %+v", records[0])
	}
}

func TestLookupMatchesOperationNames(t *testing.T) {
	store := buildTestStore(t)

	records, err := store.Lookup(context.Background(), "send email")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	found := false
	for _, r := range records {
		if r.Kind == KindAction && r.Name == "send_email" && r.PieceName == "gmail" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected gmail send_email among results: %+v", records)
	}
}

func TestLookupNoMatchIsEmptyNotError(t *testing.T) {
	store := buildTestStore(t)

	records, err := store.Lookup(context.Background(), "nonexistent_integration_xyz")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no results, got %+v", records)
	}
}

func TestLookupIsDeterministic(t *testing.T) {
	store := buildTestStore(t)

	first, err := store.Lookup(context.Background(), "message")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	second, err := store.Lookup(context.Background(), "message")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("result count changed between identical lookups: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("result %d changed: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestPieceDetails(t *testing.T) {
	store := buildTestStore(t)

	piece, ok, err := store.PieceDetails(context.Background(), "slack")
	if err != nil {
		t.Fatalf("PieceDetails: %v", err)
	}
	if !ok {
		t.Fatalf("expected slack to exist")
	}
	if len(piece.Actions) != 1 || piece.Actions[0].Name != "send_message" {
		t.Fatalf("unexpected actions: %+v", piece.Actions)
	}
	if len(piece.Actions[0].Properties) != 2 {
		t.Fatalf("expected 2 properties, got %+v", piece.Actions[0].Properties)
	}
	if !piece.Actions[0].Properties[0].Required {
		t.Fatalf("channel property should be required")
	}
	if len(piece.Categories) != 1 || piece.Categories[0] != "communication" {
		t.Fatalf("unexpected categories: %+v", piece.Categories)
	}

	_, ok, err = store.PieceDetails(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("PieceDetails: %v", err)
	}
	if ok {
		t.Fatalf("expected missing piece to report ok=false")
	}
}

func TestEntityCounts(t *testing.T) {
	store := buildTestStore(t)

	counts, err := store.EntityCounts(context.Background())
	if err != nil {
		t.Fatalf("EntityCounts: %v", err)
	}
	if counts.Pieces != 2 || counts.Actions != 2 || counts.Triggers != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if counts.Total() != 5 {
		t.Fatalf("unexpected total: %d", counts.Total())
	}
}

func TestResolveRef(t *testing.T) {
	store := buildTestStore(t)
	ctx := context.Background()

	cases := []struct {
		ref  string
		want bool
	}{
		{"piece:slack", true},
		{"action:slack/send_message", true},
		{"trigger:slack/new_message", true},
		{"piece:notion", false},
		{"action:slack/delete_everything", false},
	}
	for _, c := range cases {
		got, err := store.ResolveRef(ctx, c.ref)
		if err != nil {
			t.Fatalf("ResolveRef(%s): %v", c.ref, err)
		}
		if got != c.want {
			t.Fatalf("ResolveRef(%s) = %v, want %v", c.ref, got, c.want)
		}
	}

	if _, err := store.ResolveRef(ctx, "garbage"); err == nil {
		t.Fatalf("expected error for malformed reference")
	}
}
