// Package kb provides read-only access to the pieces knowledge base: a
// SQLite database of integrations (pieces) with their actions, triggers
// and input properties, plus an in-memory full-text index over names and
// descriptions for fuzzy lookup.
package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/blevesearch/bleve"
	_ "modernc.org/sqlite"
)

// Kind discriminates lookup results.
type Kind string

const (
	KindPiece   Kind = "piece"
	KindAction  Kind = "action"
	KindTrigger Kind = "trigger"
)

// Record is a single lookup result. For pieces, Name and PieceName are
// the same slug; for actions and triggers PieceName identifies the owner.
type Record struct {
	Kind             Kind   `json:"kind"`
	PieceName        string `json:"piece_name"`
	PieceDisplayName string `json:"piece_display_name"`
	Name             string `json:"name"`
	DisplayName      string `json:"display_name"`
	Description      string `json:"description"`
	ActionCount      int    `json:"action_count,omitempty"`
	TriggerCount     int    `json:"trigger_count,omitempty"`
}

// Property is a single input of an action or trigger.
type Property struct {
	Key          string `json:"key"`
	Type         string `json:"type"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"default_value,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Operation is an action or trigger with its ordered input properties.
type Operation struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description"`
	Properties  []Property `json:"properties,omitempty"`
}

// Piece is a full integration record.
type Piece struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Description string      `json:"description"`
	Categories  []string    `json:"categories,omitempty"`
	Version     string      `json:"version,omitempty"`
	Actions     []Operation `json:"actions,omitempty"`
	Triggers    []Operation `json:"triggers,omitempty"`
}

// Counts summarizes knowledge base content, used by the drift checker.
type Counts struct {
	Pieces   int
	Actions  int
	Triggers int
}

// Total returns the number of entities across all kinds.
func (c Counts) Total() int { return c.Pieces + c.Actions + c.Triggers }

const lookupLimit = 50

// ftsDoc is what gets indexed into bleve for description-level matches.
type ftsDoc struct {
	Kind        string `json:"kind"`
	Piece       string `json:"piece"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// Store is the read-only knowledge base handle. It is loaded once at
// process start and safe for concurrent reads; nothing mutates it at
// query time.
type Store struct {
	db      *sql.DB
	path    string
	fts     bleve.Index
	ftsDocs map[string]ftsDoc
	logger  *log.Logger
}

// Open opens the knowledge base at path and builds the in-memory
// full-text index. A missing file or an empty pieces table is a fatal
// startup error: serving against a half-initialized knowledge base is
// worse than refusing to start.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("knowledge base %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	var pieces int
	if err := db.QueryRow("SELECT COUNT(*) FROM pieces").Scan(&pieces); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge base unreadable: %w", err)
	}
	if pieces == 0 {
		db.Close()
		return nil, fmt.Errorf("knowledge base %s has no pieces", path)
	}

	s := &Store{
		db:      db,
		path:    path,
		ftsDocs: make(map[string]ftsDoc),
		logger:  log.New(log.Writer(), "[KB] ", log.LstdFlags),
	}
	if err := s.buildFTS(); err != nil {
		db.Close()
		return nil, fmt.Errorf("building full-text index: %w", err)
	}
	s.logger.Printf("knowledge base loaded from %s (%d pieces)", path, pieces)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.fts != nil {
		_ = s.fts.Close()
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// buildFTS indexes every piece, action and trigger into a memory-only
// bleve index so Lookup can match on descriptions, not just names.
func (s *Store) buildFTS() error {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	s.fts = index

	rows, err := s.db.Query(`SELECT name, display_name, COALESCE(description,'') FROM pieces`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name, display, desc string
		if err := rows.Scan(&name, &display, &desc); err != nil {
			return err
		}
		doc := ftsDoc{Kind: string(KindPiece), Piece: name, Name: name, DisplayName: display, Description: desc}
		id := "piece:" + name
		s.ftsDocs[id] = doc
		if err := index.Index(id, doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range []struct {
		name string
		kind Kind
	}{{"actions", KindAction}, {"triggers", KindTrigger}} {
		q := fmt.Sprintf(`SELECT p.name, o.name, o.display_name, COALESCE(o.description,'')
			FROM %s o JOIN pieces p ON o.piece_id = p.id`, table.name)
		oRows, err := s.db.Query(q)
		if err != nil {
			return err
		}
		for oRows.Next() {
			var piece, name, display, desc string
			if err := oRows.Scan(&piece, &name, &display, &desc); err != nil {
				oRows.Close()
				return err
			}
			doc := ftsDoc{Kind: string(table.kind), Piece: piece, Name: name, DisplayName: display, Description: desc}
			id := fmt.Sprintf("%s:%s/%s", table.kind, piece, name)
			s.ftsDocs[id] = doc
			if err := index.Index(id, doc); err != nil {
				oRows.Close()
				return err
			}
		}
		if err := oRows.Err(); err != nil {
			oRows.Close()
			return err
		}
		oRows.Close()
	}
	return nil
}

// Lookup finds pieces, actions and triggers matching term. Results are
// ordered by a relevance heuristic: exact piece name match first, then
// name substring matches (pieces, then actions, then triggers), then
// description-level full-text hits. An empty result is a valid negative,
// not an error. Ordering is deterministic for a given term and dataset.
func (s *Store) Lookup(ctx context.Context, term string) ([]Record, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}

	var out []Record
	seen := make(map[string]bool)
	add := func(r Record) {
		if len(out) >= lookupLimit {
			return
		}
		key := string(r.Kind) + ":" + r.PieceName + "/" + r.Name
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, r)
	}

	// Exact piece match.
	exact, err := s.queryPieces(ctx, `WHERE LOWER(p.name) = ? OR LOWER(p.display_name) = ?`, term, term)
	if err != nil {
		return nil, err
	}
	for _, r := range exact {
		add(r)
	}

	// Substring piece match.
	like := "%" + term + "%"
	subs, err := s.queryPieces(ctx, `WHERE LOWER(p.name) LIKE ? OR LOWER(p.display_name) LIKE ?`, like, like)
	if err != nil {
		return nil, err
	}
	for _, r := range subs {
		add(r)
	}

	// Action and trigger name matches.
	for _, tbl := range []struct {
		table string
		kind  Kind
	}{{"actions", KindAction}, {"triggers", KindTrigger}} {
		q := fmt.Sprintf(`SELECT p.name, p.display_name, o.name, o.display_name, COALESCE(o.description,'')
			FROM %s o JOIN pieces p ON o.piece_id = p.id
			WHERE LOWER(o.name) LIKE ? OR LOWER(o.display_name) LIKE ?
			ORDER BY p.display_name, o.display_name LIMIT ?`, tbl.table)
		rows, err := s.db.QueryContext(ctx, q, like, like, lookupLimit)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var r Record
			r.Kind = tbl.kind
			if err := rows.Scan(&r.PieceName, &r.PieceDisplayName, &r.Name, &r.DisplayName, &r.Description); err != nil {
				rows.Close()
				return nil, err
			}
			add(r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	// Description-level full-text hits last.
	hits, err := s.searchFTS(term, 20)
	if err != nil {
		s.logger.Printf("full-text lookup failed for %q: %v", term, err)
	} else {
		for _, r := range hits {
			add(r)
		}
	}

	return out, nil
}

// queryPieces runs a piece query with the given WHERE clause and returns
// piece records with their action/trigger counts.
func (s *Store) queryPieces(ctx context.Context, where string, args ...interface{}) ([]Record, error) {
	q := `SELECT p.name, p.display_name, COALESCE(p.description,''),
		(SELECT COUNT(*) FROM actions WHERE piece_id = p.id),
		(SELECT COUNT(*) FROM triggers WHERE piece_id = p.id)
		FROM pieces p ` + where + ` ORDER BY p.display_name LIMIT ?`
	args = append(args, lookupLimit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		r.Kind = KindPiece
		if err := rows.Scan(&r.Name, &r.DisplayName, &r.Description, &r.ActionCount, &r.TriggerCount); err != nil {
			return nil, err
		}
		r.PieceName = r.Name
		r.PieceDisplayName = r.DisplayName
		out = append(out, r)
	}
	return out, rows.Err()
}

// searchFTS resolves bleve hits back into records via the meta map.
func (s *Store) searchFTS(term string, k int) ([]Record, error) {
	query := bleve.NewQueryStringQuery(term)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := s.fts.Search(req)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, hit := range res.Hits {
		doc, ok := s.ftsDocs[hit.ID]
		if !ok {
			continue
		}
		r := Record{
			Kind:        Kind(doc.Kind),
			PieceName:   doc.Piece,
			Name:        doc.Name,
			DisplayName: doc.DisplayName,
			Description: doc.Description,
		}
		if r.Kind == KindPiece {
			r.PieceDisplayName = doc.DisplayName
		}
		out = append(out, r)
	}
	return out, nil
}

// PieceDetails returns the full record for the named piece, including
// actions, triggers and their input properties. The bool reports whether
// the piece exists; absence is not an error.
func (s *Store) PieceDetails(ctx context.Context, name string) (Piece, bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	var (
		p          Piece
		id         int64
		categories sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, display_name, COALESCE(description,''), categories, COALESCE(version,'')
		FROM pieces WHERE LOWER(name) = ? OR LOWER(display_name) = ?`, name, name).
		Scan(&id, &p.Name, &p.DisplayName, &p.Description, &categories, &p.Version)
	if err == sql.ErrNoRows {
		return Piece{}, false, nil
	}
	if err != nil {
		return Piece{}, false, err
	}
	if categories.Valid && categories.String != "" {
		// Categories are stored as a JSON array of strings.
		if err := json.Unmarshal([]byte(categories.String), &p.Categories); err != nil {
			p.Categories = []string{categories.String}
		}
	}

	for _, tbl := range []struct {
		table string
		kind  string
		dst   *[]Operation
	}{{"actions", "action", &p.Actions}, {"triggers", "trigger", &p.Triggers}} {
		q := fmt.Sprintf(`SELECT id, name, display_name, COALESCE(description,'')
			FROM %s WHERE piece_id = ? ORDER BY display_name`, tbl.table)
		rows, err := s.db.QueryContext(ctx, q, id)
		if err != nil {
			return Piece{}, false, err
		}
		type opRow struct {
			op Operation
			id int64
		}
		var ops []opRow
		for rows.Next() {
			var o opRow
			if err := rows.Scan(&o.id, &o.op.Name, &o.op.DisplayName, &o.op.Description); err != nil {
				rows.Close()
				return Piece{}, false, err
			}
			ops = append(ops, o)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return Piece{}, false, err
		}
		rows.Close()

		for i := range ops {
			props, err := s.properties(ctx, tbl.kind, ops[i].id)
			if err != nil {
				return Piece{}, false, err
			}
			ops[i].op.Properties = props
			*tbl.dst = append(*tbl.dst, ops[i].op)
		}
	}

	return p, true, nil
}

func (s *Store) properties(ctx context.Context, ownerKind string, ownerID int64) ([]Property, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, type, required, COALESCE(default_value,''), COALESCE(description,'')
		FROM properties WHERE owner_kind = ? AND owner_id = ? ORDER BY id`, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Property
	for rows.Next() {
		var p Property
		var required int
		if err := rows.Scan(&p.Key, &p.Type, &required, &p.DefaultValue, &p.Description); err != nil {
			return nil, err
		}
		p.Required = required != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// EntityCounts reports how many pieces, actions and triggers the
// knowledge base holds.
func (s *Store) EntityCounts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM pieces", &c.Pieces},
		{"SELECT COUNT(*) FROM actions", &c.Actions},
		{"SELECT COUNT(*) FROM triggers", &c.Triggers},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

// ResolveRef reports whether a vector-index back-reference (for example
// "piece:slack" or "action:slack/send_message") resolves to a live
// entity. A dangling reference signals index/store staleness.
func (s *Store) ResolveRef(ctx context.Context, ref string) (bool, error) {
	kind, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return false, fmt.Errorf("malformed reference %q", ref)
	}
	switch Kind(kind) {
	case KindPiece:
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pieces WHERE name = ?`, rest).Scan(&n)
		return n > 0, err
	case KindAction, KindTrigger:
		piece, name, ok := strings.Cut(rest, "/")
		if !ok {
			return false, fmt.Errorf("malformed reference %q", ref)
		}
		table := "actions"
		if Kind(kind) == KindTrigger {
			table = "triggers"
		}
		q := fmt.Sprintf(`SELECT COUNT(*) FROM %s o JOIN pieces p ON o.piece_id = p.id
			WHERE p.name = ? AND o.name = ?`, table)
		var n int
		err := s.db.QueryRowContext(ctx, q, piece, name).Scan(&n)
		return n > 0, err
	default:
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}
}
