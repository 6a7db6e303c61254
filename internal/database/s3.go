package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client the repository needs.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Repository keeps the contact document as one JSON object. Writes are
// conditional on the ETag that was read, so two writers cannot both win.
type S3Repository struct {
	client S3API
	bucket string
	key    string
	logger zerolog.Logger
}

// NewS3Repository creates a repository for s3://bucket/key.
func NewS3Repository(client S3API, bucket, key string, logger zerolog.Logger) *S3Repository {
	return &S3Repository{
		client: client,
		bucket: bucket,
		key:    key,
		logger: logger.With().Str("component", "contacts_s3").Str("bucket", bucket).Str("key", key).Logger(),
	}
}

// Load reads the document. A missing object reads as an empty document at version 0.
func (r *S3Repository) Load(ctx context.Context) (*models.ContactDocument, error) {
	doc, _, err := r.read(ctx)
	return doc, err
}

// Save writes doc if the object still holds doc.Version, then increments it.
func (r *S3Repository) Save(ctx context.Context, doc *models.ContactDocument) error {
	current, etag, err := r.read(ctx)
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
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode contacts: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if etag == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(etag)
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		if isPreconditionFailure(err) {
			r.logger.Warn().Msg("Contact object changed during save")
			return contacts.ErrVersionConflict
		}
		return fmt.Errorf("failed to upload contacts: %w", err)
	}

	doc.Version = next.Version
	return nil
}

func (r *S3Repository) read(ctx context.Context) (*models.ContactDocument, string, error) {
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return &models.ContactDocument{Contacts: []models.Contact{}}, "", nil
		}
		return nil, "", fmt.Errorf("failed to download contacts: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read contacts object: %w", err)
	}

	doc := &models.ContactDocument{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, "", fmt.Errorf("failed to decode contacts: %w", err)
		}
	}
	if doc.Contacts == nil {
		doc.Contacts = []models.Contact{}
	}
	return doc, aws.ToString(result.ETag), nil
}

func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
