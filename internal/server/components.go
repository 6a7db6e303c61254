package server

import (
	"context"
	"fmt"

	"otmsite/internal/config"
	"otmsite/internal/contacts"
	"otmsite/internal/database"
	"otmsite/internal/email"
	"otmsite/internal/encryption"
	"otmsite/internal/mailbox"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Components are the services shared by the HTTP server and the command line tools.
type Components struct {
	Repository contacts.Repository
	Store      *contacts.Service
	Mailer     *email.EmailService
	// Poller is nil when no mailbox credentials are configured.
	Poller *mailbox.Poller
}

// NewComponents wires the contact store, notifications and mailbox poller.
// With a nil db the store is the S3 object named by CONTACTS_S3_BUCKET, or
// the JSON file at cfg.ContactsFile when no bucket is set.
func NewComponents(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger zerolog.Logger) (*Components, error) {
	repo, err := newRepository(ctx, cfg, db, logger)
	if err != nil {
		return nil, err
	}

	sender, err := email.NewSender(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create email transport: %w", err)
	}
	mailer, err := email.NewEmailService(sender, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}

	codec := encryption.NewCodec(cfg.EncryptionKey, cfg.EncryptionAcceptLegacy, logger)
	store := contacts.NewService(repo, codec, mailer, cfg.MessageIDDomain, logger)

	c := &Components{
		Repository: repo,
		Store:      store,
		Mailer:     mailer,
	}

	dialer, err := mailbox.NewIMAPDialerFromConfig(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Mailbox poller disabled")
		return c, nil
	}
	c.Poller = mailbox.NewPoller(dialer, store, mailbox.Options{
		OwnAddress: cfg.EmailUser,
		Interval:   cfg.PollInterval(),
		Timeout:    cfg.PollTimeout(),
	}, logger)

	return c, nil
}

func newRepository(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger zerolog.Logger) (contacts.Repository, error) {
	if db == nil {
		if cfg.ContactsS3Bucket != "" {
			awsCfg, err := cfg.AWSConfig(ctx)
			if err != nil {
				return nil, err
			}
			logger.Info().Str("bucket", cfg.ContactsS3Bucket).Str("key", cfg.ContactsS3Key).Msg("Using S3 contact store")
			return database.NewS3Repository(s3.NewFromConfig(awsCfg), cfg.ContactsS3Bucket, cfg.ContactsS3Key, logger), nil
		}
		logger.Info().Str("path", cfg.ContactsFile).Msg("Using JSON file contact store")
		return database.NewFileRepository(cfg.ContactsFile, logger), nil
	}

	repo := database.NewSQLRepository(db, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare contact store: %w", err)
	}
	logger.Info().Str("driver", db.DriverName()).Msg("Using SQL contact store")
	return repo, nil
}
