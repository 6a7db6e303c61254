package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRepository_MissingFileIsEmpty(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "data", "contacts.json"), zerolog.Nop())

	doc, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, doc.Version)
	assert.NotNil(t, doc.Contacts)
	assert.Empty(t, doc.Contacts)
}

func TestFileRepository_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "contacts.json")
	repo := NewFileRepository(path, zerolog.Nop())
	ctx := context.Background()

	doc, err := repo.Load(ctx)
	require.NoError(t, err)
	doc.Contacts = append(doc.Contacts, models.Contact{ID: "a", Name: "Jane", Status: models.StatusNew})

	require.NoError(t, repo.Save(ctx, doc))
	assert.Equal(t, int64(1), doc.Version)

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	require.Len(t, loaded.Contacts, 1)
	assert.Equal(t, "Jane", loaded.Contacts[0].Name)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileRepository_StaleSaveConflicts(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "contacts.json"), zerolog.Nop())
	ctx := context.Background()

	first, err := repo.Load(ctx)
	require.NoError(t, err)
	second, err := repo.Load(ctx)
	require.NoError(t, err)

	first.Contacts = append(first.Contacts, models.Contact{ID: "a"})
	require.NoError(t, repo.Save(ctx, first))

	second.Contacts = append(second.Contacts, models.Contact{ID: "b"})
	assert.ErrorIs(t, repo.Save(ctx, second), contacts.ErrVersionConflict)

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Contacts, 1)
	assert.Equal(t, "a", loaded.Contacts[0].ID)
}

func TestFileRepository_ReadsUnversionedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	legacy := `{"contacts":[{"id":"1715151515","name":"Jane","email":"x","message":"y","status":"new","createdAt":"2025-05-08T08:46:00.000Z","responses":[]}]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	repo := NewFileRepository(path, zerolog.Nop())
	doc, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, doc.Version)
	require.Len(t, doc.Contacts, 1)
	assert.Equal(t, 2025, doc.Contacts[0].CreatedAt.Year())

	require.NoError(t, repo.Save(context.Background(), doc))
	assert.Equal(t, int64(1), doc.Version)
}

func TestFileRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o600))

	_, err := NewFileRepository(path, zerolog.Nop()).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode contacts file")
}

func TestFileRepository_WithContactService(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "contacts.json"), zerolog.Nop())
	svc := contacts.NewService(repo, plainCodec{}, nil, "otmeducation.com", zerolog.Nop())
	ctx := context.Background()

	_, err := svc.AddContact(ctx, contacts.NewContact{Name: "Jane", Email: "jane@x.com", Message: "Hi"})
	require.NoError(t, err)
	_, err = svc.AddContact(ctx, contacts.NewContact{Name: "Jane", Email: "jane@x.com", Message: "Follow up"})
	require.NoError(t, err)

	list, err := svc.GetContacts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Responses, 1)
}

// plainCodec stores values unchanged.
type plainCodec struct{}

func (plainCodec) Encrypt(s string) string { return s }
func (plainCodec) Decrypt(s string) string { return s }
func (plainCodec) IsEncrypted(string) bool { return false }
