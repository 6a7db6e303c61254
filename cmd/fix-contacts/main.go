package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"otmsite/internal/config"
	"otmsite/internal/contacts"
	"otmsite/internal/database"
	"otmsite/internal/encryption"
	"otmsite/internal/server"

	"github.com/jmoiron/sqlx"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Only report plaintext fields, do not rewrite the store")
	merge := flag.Bool("merge", false, "Also merge threads that share an email address")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.SetupLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var db *sqlx.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()
	}

	components, err := server.NewComponents(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// Repairs never email anyone.
	store := contacts.NewService(
		components.Repository,
		encryption.NewCodec(cfg.EncryptionKey, cfg.EncryptionAcceptLegacy, logger),
		nil,
		cfg.MessageIDDomain,
		logger,
	)

	report, err := store.Diagnose(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to read contact store")
	}
	fmt.Printf("Contacts: %d, responses: %d, plaintext fields: %d (version %d)\n",
		report.Contacts, report.Responses, report.PlaintextFields, report.Version)
	for _, d := range report.Details {
		if d.EmailEncrypted && d.MessageEncrypted && d.PlainResponses == 0 {
			continue
		}
		fmt.Printf("  - %s (%s): email encrypted=%t, message encrypted=%t, plaintext responses=%d/%d\n",
			d.ContactID, d.Name, d.EmailEncrypted, d.MessageEncrypted, d.PlainResponses, d.Responses)
	}

	if *dryRun {
		return
	}

	changed, err := store.EncryptPlaintextFields(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to encrypt plaintext fields")
	}
	fmt.Printf("\n✓ Encrypted plaintext fields on %d contacts\n", changed)

	if *merge {
		result := store.MergeChats(ctx)
		if !result.Success {
			logger.Fatal().Str("message", result.Message).Msg("Merge failed")
		}
		fmt.Printf("✓ %s\n", result.Message)
	}
}
