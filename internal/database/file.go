package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/rs/zerolog"
)

// FileRepository keeps the contact document in a single JSON file, written
// atomically through a temp file and rename.
type FileRepository struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewFileRepository creates a repository backed by path. The file and its
// directory are created on first save.
func NewFileRepository(path string, logger zerolog.Logger) *FileRepository {
	return &FileRepository{
		path:   path,
		logger: logger.With().Str("component", "contacts_file").Str("path", path).Logger(),
	}
}

// Load reads the document. A missing file reads as an empty document at version 0.
func (r *FileRepository) Load(_ context.Context) (*models.ContactDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// Save writes doc if the file still holds doc.Version, then increments it.
func (r *FileRepository) Save(_ context.Context, doc *models.ContactDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read()
	if err != nil {
		return err
	}
	if current.Version != doc.Version {
		r.logger.Warn().
			Int64("expected", doc.Version).
			Int64("stored", current.Version).
			Msg("Contact document version moved, rejecting save")
		return contacts.ErrVersionConflict
	}

	next := *doc
	next.Version = doc.Version + 1
	if next.Contacts == nil {
		next.Contacts = []models.Contact{}
	}
	data, err := json.MarshalIndent(&next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode contacts: %w", err)
	}

	if err := r.write(data); err != nil {
		return err
	}
	doc.Version = next.Version
	return nil
}

func (r *FileRepository) read() (*models.ContactDocument, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &models.ContactDocument{Contacts: []models.Contact{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read contacts file: %w", err)
	}

	doc := &models.ContactDocument{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to decode contacts file: %w", err)
		}
	}
	if doc.Contacts == nil {
		doc.Contacts = []models.Contact{}
	}
	return doc, nil
}

func (r *FileRepository) write(data []byte) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".contacts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write contacts: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync contacts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace contacts file: %w", err)
	}
	return nil
}
