package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the vmrelay server.
// Precedence: CLI flags > env vars > defaults. Credentials (PBX password,
// Webex token, CUCM password) are env-only and never accepted as flags.
type Config struct {
	HTTPPort  int
	SpoolDir  string // local scratch and archive directory for wav/mp3 files
	LogLevel  string
	LogFormat string // log output format: "text" or "json"

	// Unity Connection (PBX) REST API.
	UCXNServer        string // host[:port], default port 9110
	UCXNUser          string // env VMRELAY_UCXN_USER
	UCXNPassword      string // env VMRELAY_UCXN_PASSWORD
	UCXNInsecureTLS   bool   // skip certificate validation (lab deployments only)
	GreetingLocale    string // greeting stream locale, e.g. "1033"
	SubscribeCallback string // public callback URL to register with the message event service; empty disables
	SubscribeResource string // mailbox alias the subscription covers
	SubscribeTTL      time.Duration
	SubscribeRenew    time.Duration

	// AWS services.
	AWSRegion          string
	S3Bucket           string
	TranscribeLanguage string

	// Transcription polling.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Webex notification target. Room wins when both are set.
	WebexToken   string // env VMRELAY_WEBEX_TOKEN
	WebexRoomID  string
	WebexToEmail string

	// Dedup store backend: "file" or "sqlite".
	DedupBackend string

	// ArchiveMaxDays removes archived recordings older than this many
	// days. Zero keeps archives forever.
	ArchiveMaxDays int

	// External mp3->wav converter.
	SoxPath string

	// Optional CUCM call-forwarding toggle alongside the greeting.
	CUCMEndpoint  string // AXL endpoint URL; empty disables forwarding updates
	CUCMUser      string
	CUCMPassword  string // env VMRELAY_CUCM_PASSWORD
	ForwardTarget string // directory number whose Call Forward All is toggled
	ForwardDest   string // destination the forward points at when enabled
}

// defaults
const (
	defaultHTTPPort     = 8080
	defaultSpoolDir     = "./spool"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultLocale       = "1033"
	defaultRegion       = "us-east-1"
	defaultLanguage     = "en-US"
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 10 * time.Minute
	defaultSubTTL       = 24 * time.Hour
	defaultSubRenew     = 12 * time.Hour
	defaultDedupBackend = "file"
	defaultSoxPath      = "sox"
)

// envPrefix is the prefix for all vmrelay environment variables.
const envPrefix = "VMRELAY_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("vmrelay", flag.ContinueOnError)

	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.SpoolDir, "spool-dir", defaultSpoolDir, "directory for downloaded and synthesized audio files")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.UCXNServer, "ucxn-server", "", "Unity Connection host[:port], default port 9110")
	fs.BoolVar(&cfg.UCXNInsecureTLS, "ucxn-insecure-tls", false, "skip TLS certificate validation for the Unity Connection API")
	fs.StringVar(&cfg.GreetingLocale, "greeting-locale", defaultLocale, "greeting stream file locale code")
	fs.StringVar(&cfg.SubscribeCallback, "subscribe-callback", "", "public callback URL registered with the message event service (empty disables subscription renewal)")
	fs.StringVar(&cfg.SubscribeResource, "subscribe-resource", "", "mailbox alias covered by the event subscription")
	fs.DurationVar(&cfg.SubscribeTTL, "subscribe-ttl", defaultSubTTL, "lifetime requested for each event subscription")
	fs.DurationVar(&cfg.SubscribeRenew, "subscribe-renew-every", defaultSubRenew, "interval between subscription renewals")
	fs.StringVar(&cfg.AWSRegion, "aws-region", defaultRegion, "AWS region for S3, Transcribe and Polly")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", "", "S3 bucket used as transcription scratch space")
	fs.StringVar(&cfg.TranscribeLanguage, "transcribe-language", defaultLanguage, "language code passed to the transcription service")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", defaultPollInterval, "delay between transcription job status polls")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", defaultPollTimeout, "maximum time to wait for a transcription job before giving up")
	fs.StringVar(&cfg.WebexRoomID, "webex-room", "", "Webex room ID that receives transcripts")
	fs.StringVar(&cfg.WebexToEmail, "webex-to-email", "", "Webex recipient email that receives transcripts (used when no room is set)")
	fs.StringVar(&cfg.DedupBackend, "dedup-backend", defaultDedupBackend, "dedup store backend (file, sqlite)")
	fs.IntVar(&cfg.ArchiveMaxDays, "archive-max-days", 0, "remove archived recordings older than this many days (0 keeps them forever)")
	fs.StringVar(&cfg.SoxPath, "sox-path", defaultSoxPath, "path to the sox binary used for mp3 to wav conversion")
	fs.StringVar(&cfg.CUCMEndpoint, "cucm-endpoint", "", "CUCM AXL endpoint URL for call-forwarding updates (empty disables)")
	fs.StringVar(&cfg.CUCMUser, "cucm-user", "", "CUCM AXL username")
	fs.StringVar(&cfg.ForwardTarget, "forward-target", "", "directory number whose Call Forward All is toggled with the greeting")
	fs.StringVar(&cfg.ForwardDest, "forward-dest", "", "forwarding destination applied when the greeting is enabled")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	// Credentials are env-only.
	cfg.UCXNUser = os.Getenv(envPrefix + "UCXN_USER")
	cfg.UCXNPassword = os.Getenv(envPrefix + "UCXN_PASSWORD")
	cfg.WebexToken = os.Getenv(envPrefix + "WEBEX_TOKEN")
	cfg.CUCMPassword = os.Getenv(envPrefix + "CUCM_PASSWORD")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"http-port":             envPrefix + "HTTP_PORT",
		"spool-dir":             envPrefix + "SPOOL_DIR",
		"log-level":             envPrefix + "LOG_LEVEL",
		"log-format":            envPrefix + "LOG_FORMAT",
		"ucxn-server":           envPrefix + "UCXN_SERVER",
		"ucxn-insecure-tls":     envPrefix + "UCXN_INSECURE_TLS",
		"greeting-locale":       envPrefix + "GREETING_LOCALE",
		"subscribe-callback":    envPrefix + "SUBSCRIBE_CALLBACK",
		"subscribe-resource":    envPrefix + "SUBSCRIBE_RESOURCE",
		"subscribe-ttl":         envPrefix + "SUBSCRIBE_TTL",
		"subscribe-renew-every": envPrefix + "SUBSCRIBE_RENEW_EVERY",
		"aws-region":            envPrefix + "AWS_REGION",
		"s3-bucket":             envPrefix + "S3_BUCKET",
		"transcribe-language":   envPrefix + "TRANSCRIBE_LANGUAGE",
		"poll-interval":         envPrefix + "POLL_INTERVAL",
		"poll-timeout":          envPrefix + "POLL_TIMEOUT",
		"webex-room":            envPrefix + "WEBEX_ROOM",
		"webex-to-email":        envPrefix + "WEBEX_TO_EMAIL",
		"dedup-backend":         envPrefix + "DEDUP_BACKEND",
		"archive-max-days":      envPrefix + "ARCHIVE_MAX_DAYS",
		"sox-path":              envPrefix + "SOX_PATH",
		"cucm-endpoint":         envPrefix + "CUCM_ENDPOINT",
		"cucm-user":             envPrefix + "CUCM_USER",
		"forward-target":        envPrefix + "FORWARD_TARGET",
		"forward-dest":          envPrefix + "FORWARD_DEST",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "spool-dir":
			cfg.SpoolDir = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "ucxn-server":
			cfg.UCXNServer = val
		case "ucxn-insecure-tls":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.UCXNInsecureTLS = v
			}
		case "greeting-locale":
			cfg.GreetingLocale = val
		case "subscribe-callback":
			cfg.SubscribeCallback = val
		case "subscribe-resource":
			cfg.SubscribeResource = val
		case "subscribe-ttl":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.SubscribeTTL = v
			}
		case "subscribe-renew-every":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.SubscribeRenew = v
			}
		case "aws-region":
			cfg.AWSRegion = val
		case "s3-bucket":
			cfg.S3Bucket = val
		case "transcribe-language":
			cfg.TranscribeLanguage = val
		case "poll-interval":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.PollInterval = v
			}
		case "poll-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.PollTimeout = v
			}
		case "webex-room":
			cfg.WebexRoomID = val
		case "webex-to-email":
			cfg.WebexToEmail = val
		case "dedup-backend":
			cfg.DedupBackend = val
		case "archive-max-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ArchiveMaxDays = v
			}
		case "sox-path":
			cfg.SoxPath = val
		case "cucm-endpoint":
			cfg.CUCMEndpoint = val
		case "cucm-user":
			cfg.CUCMUser = val
		case "forward-target":
			cfg.ForwardTarget = val
		case "forward-dest":
			cfg.ForwardDest = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.UCXNServer == "" {
		return fmt.Errorf("ucxn-server is required")
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("s3-bucket is required")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	validBackends := map[string]bool{"file": true, "sqlite": true}
	if !validBackends[strings.ToLower(c.DedupBackend)] {
		return fmt.Errorf("dedup-backend must be one of file, sqlite; got %q", c.DedupBackend)
	}
	c.DedupBackend = strings.ToLower(c.DedupBackend)

	if c.ArchiveMaxDays < 0 {
		return fmt.Errorf("archive-max-days must not be negative, got %d", c.ArchiveMaxDays)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %v", c.PollInterval)
	}
	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("poll-timeout must be at least one poll-interval, got %v", c.PollTimeout)
	}

	if c.SubscribeCallback != "" && c.SubscribeResource == "" {
		return fmt.Errorf("subscribe-resource is required when subscribe-callback is set")
	}

	// Forwarding settings must be all-or-nothing.
	if c.CUCMEndpoint != "" && (c.ForwardTarget == "" || c.ForwardDest == "") {
		return fmt.Errorf("forward-target and forward-dest are required when cucm-endpoint is set")
	}

	return nil
}

// ForwardingEnabled reports whether the optional CUCM call-forwarding
// update runs alongside the greeting toggle.
func (c *Config) ForwardingEnabled() bool {
	return c.CUCMEndpoint != ""
}

// SubscriptionEnabled reports whether the background event-subscription
// renewal loop should run.
func (c *Config) SubscriptionEnabled() bool {
	return c.SubscribeCallback != ""
}

// UCXNBaseURL returns the Unity Connection API base URL. A bare host gets
// the default admin port 9110 appended.
func (c *Config) UCXNBaseURL() string {
	host := c.UCXNServer
	if !strings.Contains(host, ":") {
		host += ":9110"
	}
	return "https://" + host
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
