package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"otmsite/internal/config"
	"otmsite/internal/contacts"
	"otmsite/internal/database"
	"otmsite/internal/emails"
	"otmsite/internal/encryption"
	"otmsite/internal/models"
	"otmsite/internal/server"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

func main() {
	// Parse command line flags
	mboxPath := flag.String("mbox", "", "Path to an MBOX archive to import instead of polling the inbox")
	emlPath := flag.String("eml", "", "Path to an EML file or a directory of EML files to import")
	timeout := flag.Duration("timeout", 5*time.Minute, "Upper bound for the whole run")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	logger := cfg.SetupLogger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
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

	// Archived mail must not trigger notifications or auto-responses.
	quiet := contacts.NewService(
		components.Repository,
		encryption.NewCodec(cfg.EncryptionKey, cfg.EncryptionAcceptLegacy, logger),
		nil,
		cfg.MessageIDDomain,
		logger,
	)

	switch {
	case *mboxPath != "":
		importMBOX(ctx, quiet, *mboxPath, logger)
	case *emlPath != "":
		importEML(ctx, quiet, *emlPath, logger)
	default:
		if components.Poller == nil {
			fmt.Println("Mailbox is not configured: set EMAIL_USER, EMAIL_PASSWORD and EMAIL_HOST")
			os.Exit(1)
		}
		fmt.Printf("Checking %s for unseen mail...\n", cfg.EmailHost)
		result, err := components.Poller.PollOnce(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Mailbox poll failed")
		}
		fmt.Println("\n✓ Mailbox poll complete!")
		fmt.Printf("  - Found:     %d\n", result.Found)
		fmt.Printf("  - Processed: %d\n", result.Processed)
		fmt.Printf("  - Skipped:   %d\n", result.Skipped)
		fmt.Printf("  - Failed:    %d\n", result.Failed)
	}
}

// importer files parsed messages into threads and keeps the tallies.
type importer struct {
	store  *contacts.Service
	logger zerolog.Logger

	stored int
	failed int
}

func (im *importer) add(ctx context.Context, email *models.InboundEmail) error {
	emails.PrepareBody(email)
	if _, err := im.store.AddEmailResponse(ctx, *email); err != nil {
		im.logger.Warn().Err(err).Str("message_id", email.MessageID).Msg("Failed to store email")
		im.failed++
	} else {
		im.stored++
	}
	// Stop the scan once the run deadline passes.
	return ctx.Err()
}

func importMBOX(ctx context.Context, store *contacts.Service, path string, logger zerolog.Logger) {
	fmt.Printf("Parsing MBOX file: %s\n", path)
	f, err := os.Open(path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open MBOX file")
	}
	defer f.Close()

	im := &importer{store: store, logger: logger}
	parsed, unparsable, err := emails.ParseMBOX(f, func(email *models.InboundEmail) error {
		return im.add(ctx, email)
	})
	if err != nil {
		logger.Error().Err(err).Msg("MBOX import stopped early")
	}

	fmt.Println("\n✓ Email import complete!")
	fmt.Printf("  - Parsed: %d emails (%d unparsable)\n", parsed, unparsable)
	fmt.Printf("  - Stored: %d emails (%d errors)\n", im.stored, im.failed)
}

func importEML(ctx context.Context, store *contacts.Service, path string, logger zerolog.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to access path")
	}

	var files []string
	if info.IsDir() {
		fmt.Println("Scanning directory for EML files...")
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(strings.ToLower(p), ".eml") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to scan directory")
		}
	} else {
		files = []string{path}
	}

	im := &importer{store: store, logger: logger}
	unparsable := 0
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("Failed to read EML file")
			unparsable++
			continue
		}
		email, err := emails.ParseMessage(raw)
		if err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("Failed to parse EML file")
			unparsable++
			continue
		}
		if err := im.add(ctx, email); err != nil {
			logger.Error().Err(err).Msg("EML import stopped early")
			break
		}
	}

	fmt.Println("\n✓ Email import complete!")
	fmt.Printf("  - Files:  %d (%d unparsable)\n", len(files), unparsable)
	fmt.Printf("  - Stored: %d emails (%d errors)\n", im.stored, im.failed)
}
