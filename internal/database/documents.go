package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// documentRowID is the single row holding the contact document.
const documentRowID = 1

// SQLRepository stores the contact document as one versioned row, so the
// whole-document update is guarded by a compare-and-set on the version column.
type SQLRepository struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

type documentRow struct {
	Version int64  `db:"version"`
	Data    string `db:"data"`
}

// NewSQLRepository creates a repository on an open connection. Call
// EnsureSchema once before use.
func NewSQLRepository(db *sqlx.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger.With().Str("component", "contact_documents").Logger(),
	}
}

// EnsureSchema creates the documents table and seeds the empty document.
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	dataType := "TEXT"
	seed := `INSERT INTO contact_documents (id, version, data) VALUES ($1, 0, $2) ON CONFLICT (id) DO NOTHING`
	if r.db.DriverName() == driverMySQL {
		dataType = "LONGTEXT"
		seed = `INSERT IGNORE INTO contact_documents (id, version, data) VALUES (?, 0, ?)`
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contact_documents (
		id INTEGER PRIMARY KEY,
		version BIGINT NOT NULL DEFAULT 0,
		data %s NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`, dataType)

	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create contact_documents table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, seed, documentRowID, `{"contacts":[]}`); err != nil {
		return fmt.Errorf("failed to seed contact document: %w", err)
	}
	return nil
}

// Load reads the document; a missing row reads as an empty document.
func (r *SQLRepository) Load(ctx context.Context) (*models.ContactDocument, error) {
	var row documentRow
	query := r.db.Rebind(`SELECT version, data FROM contact_documents WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, documentRowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ContactDocument{Contacts: []models.Contact{}}, nil
		}
		return nil, fmt.Errorf("failed to query contact document: %w", err)
	}

	doc := &models.ContactDocument{}
	if err := json.Unmarshal([]byte(row.Data), doc); err != nil {
		return nil, fmt.Errorf("failed to decode contact document: %w", err)
	}
	if doc.Contacts == nil {
		doc.Contacts = []models.Contact{}
	}
	doc.Version = row.Version
	return doc, nil
}

// Save writes doc if the stored version still equals doc.Version.
func (r *SQLRepository) Save(ctx context.Context, doc *models.ContactDocument) error {
	next := *doc
	next.Version = doc.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode contact document: %w", err)
	}

	query := r.db.Rebind(`UPDATE contact_documents
		SET data = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`)
	res, err := r.db.ExecContext(ctx, query, string(data), documentRowID, doc.Version)
	if err != nil {
		return fmt.Errorf("failed to update contact document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		r.logger.Warn().Int64("version", doc.Version).Msg("Contact document version moved, rejecting save")
		return contacts.ErrVersionConflict
	}

	doc.Version = next.Version
	return nil
}
