package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const defaultEncryptionKey = "otm-education-secure-key-32-bytes!!"

// Config holds all configuration for the application
type Config struct {
	Port     string
	Version  string
	LogLevel string

	EncryptionKey          string
	EncryptionAcceptLegacy bool   // Recognise unprefixed iv:cipher tokens written by older deployments
	ContactsFile           string // JSON document path used when DatabaseURL is empty
	DatabaseURL            string // Optional PostgreSQL/MySQL document store
	ContactsS3Bucket       string // Optional S3 document store, used when DatabaseURL is empty
	ContactsS3Key          string

	EmailUser       string
	EmailPassword   string
	EmailHost       string
	IMAPPort        int
	IMAPTLS         bool // Implicit TLS for IMAP, STARTTLS otherwise
	SMTPPort        int
	SMTPSecure      bool   // Implicit TLS for SMTP, STARTTLS otherwise
	EmailProvider   string // "smtp", "sendgrid" or "ses"
	SendGridAPIKey  string
	AdminEmail      string // Recipient of new-contact notifications
	EmailFromName   string
	MessageIDDomain string

	EmailFetchEnabled   bool
	PollIntervalSeconds int
	PollTimeoutSeconds  int

	AdminUsername     string
	AdminPasswordHash string // bcrypt hash
	AdminPassword     string // Plaintext fallback for local development

	ContactRateLimit int // Form submissions per client IP per minute

	AWSRegion          string
	AWSAccessKeyID     string // Optional; the default credential chain is used when empty
	AWSSecretAccessKey string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	emailUser := os.Getenv("EMAIL_USER")

	config := &Config{
		Port:     getEnv("PORT", "8080"),
		Version:  getEnv("VERSION", "1.0.0"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		EncryptionKey:          getEnv("ENCRYPTION_KEY", defaultEncryptionKey),
		EncryptionAcceptLegacy: getEnvBool("ENCRYPTION_ACCEPT_LEGACY", true),
		ContactsFile:           getEnv("CONTACTS_FILE", "data/contacts.json"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		ContactsS3Bucket:       os.Getenv("CONTACTS_S3_BUCKET"),
		ContactsS3Key:          getEnv("CONTACTS_S3_KEY", "contacts.json"),

		EmailUser:       emailUser,
		EmailPassword:   os.Getenv("EMAIL_PASSWORD"),
		EmailHost:       getEnv("EMAIL_HOST", "ssl0.ovh.net"),
		IMAPPort:        getEnvInt("EMAIL_IMAP_PORT", 993),
		IMAPTLS:         getEnvBool("EMAIL_IMAP_TLS", true),
		SMTPPort:        getEnvInt("EMAIL_SMTP_PORT", 587),
		SMTPSecure:      getEnvBool("EMAIL_SECURE", false),
		EmailProvider:   strings.ToLower(getEnv("EMAIL_PROVIDER", "smtp")),
		SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		AdminEmail:      getEnv("ADMIN_EMAIL", emailUser),
		EmailFromName:   getEnv("EMAIL_FROM_NAME", "OTM Education"),
		MessageIDDomain: getEnv("MESSAGE_ID_DOMAIN", "otmeducation.com"),

		EmailFetchEnabled:   getEnvBool("EMAIL_FETCH_ENABLED", true),
		PollIntervalSeconds: getEnvInt("EMAIL_POLL_INTERVAL_SECONDS", 60),
		PollTimeoutSeconds:  getEnvInt("EMAIL_POLL_TIMEOUT_SECONDS", 120),

		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),

		ContactRateLimit: getEnvInt("CONTACT_RATE_LIMIT", 5),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}

	return config
}

// PollInterval returns the mailbox poll interval, never below one second
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds < 1 {
		return time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollTimeout bounds a single poll cycle
func (c *Config) PollTimeout() time.Duration {
	if c.PollTimeoutSeconds < 1 {
		return 2 * time.Minute
	}
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// MailboxConfigured reports whether IMAP credentials are present
func (c *Config) MailboxConfigured() bool {
	return c.EmailUser != "" && c.EmailPassword != "" && c.EmailHost != ""
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "otmsite").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
