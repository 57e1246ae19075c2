package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/flowpilot-ai/flowpilot/internal/kb/migrations"
)

// ExportProperty mirrors one input property in the pieces JSON export.
type ExportProperty struct {
	Key          string `json:"key"`
	Type         string `json:"type"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"default_value,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ExportOperation mirrors one action or trigger in the export.
type ExportOperation struct {
	Name        string           `json:"name"`
	DisplayName string           `json:"display_name"`
	Description string           `json:"description"`
	Properties  []ExportProperty `json:"properties,omitempty"`
}

// ExportPiece mirrors one piece in the export, the unit of ingestion.
type ExportPiece struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description"`
	Categories  []string          `json:"categories,omitempty"`
	Version     string            `json:"version,omitempty"`
	Actions     []ExportOperation `json:"actions,omitempty"`
	Triggers    []ExportOperation `json:"triggers,omitempty"`
}

// ReadExport parses a pieces JSON export file.
func ReadExport(path string) ([]ExportPiece, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	var pieces []ExportPiece
	if err := json.Unmarshal(raw, &pieces); err != nil {
		return nil, fmt.Errorf("parsing export: %w", err)
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("export %s contains no pieces", path)
	}
	return pieces, nil
}

// BuildDatabase creates (or refreshes) the knowledge base at dbPath from
// an export. The schema is applied via embedded migrations, existing
// content is replaced, and the whole ingest runs in one transaction so
// readers never observe a half-written database.
func BuildDatabase(ctx context.Context, dbPath string, pieces []ExportPiece) error {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// properties has no foreign key to actions/triggers, so the cascade
	// from pieces does not reach it; freed rowids would otherwise attach
	// old property rows to new operations on the next ingest.
	if _, err := tx.ExecContext(ctx, "DELETE FROM properties"); err != nil {
		return fmt.Errorf("clearing properties: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pieces"); err != nil {
		return fmt.Errorf("clearing pieces: %w", err)
	}

	for _, p := range pieces {
		if p.Name == "" {
			return fmt.Errorf("piece with empty name in export")
		}
		var categories string
		if len(p.Categories) > 0 {
			raw, err := json.Marshal(p.Categories)
			if err != nil {
				return err
			}
			categories = string(raw)
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO pieces (name, display_name, description, categories, version)
			VALUES (?, ?, ?, ?, ?)`, p.Name, p.DisplayName, p.Description, categories, p.Version)
		if err != nil {
			return fmt.Errorf("inserting piece %s: %w", p.Name, err)
		}
		pieceID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := insertOps(ctx, tx, "actions", "action", pieceID, p.Actions); err != nil {
			return fmt.Errorf("piece %s actions: %w", p.Name, err)
		}
		if err := insertOps(ctx, tx, "triggers", "trigger", pieceID, p.Triggers); err != nil {
			return fmt.Errorf("piece %s triggers: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

func insertOps(ctx context.Context, tx *sql.Tx, table, ownerKind string, pieceID int64, ops []ExportOperation) error {
	q := fmt.Sprintf(`INSERT INTO %s (piece_id, name, display_name, description) VALUES (?, ?, ?, ?)`, table)
	for _, op := range ops {
		res, err := tx.ExecContext(ctx, q, pieceID, op.Name, op.DisplayName, op.Description)
		if err != nil {
			return err
		}
		opID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, prop := range op.Properties {
			required := 0
			if prop.Required {
				required = 1
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO properties (owner_kind, owner_id, key, type, required, default_value, description)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ownerKind, opID, prop.Key, prop.Type, required, prop.DefaultValue, prop.Description); err != nil {
				return err
			}
		}
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
