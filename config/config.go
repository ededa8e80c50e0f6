// Package config parses the process's startup configuration from flags
// and environment variables. The teacher reads a Caddyfile through a
// custom scanner (setup.go's parseCaddyConfig); a standalone module has
// no such file, so this package keeps the teacher's validation idiom —
// reject early with a typed error, apply defaults for anything unset —
// applied to flag.FlagSet + os.Getenv instead.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Defaults mirror spec.md §6's stated limits and filesystem location.
const (
	DefaultTempDir             = "/tmp/seafhttp"
	DefaultMaxUploadSize       = 100 << 20 // 100 MiB
	DefaultMaxContentLine      = 10240
	DefaultRPCTimeout          = 30 * time.Second
	DefaultTimestampTolerance  = 300 // seconds
	DefaultListenAddr          = ":8090"
)

// Config holds everything cmd/seafhttp-upload needs to start serving.
type Config struct {
	ListenAddr string

	TempDir        string
	MaxUploadSize  int64
	MaxContentLine int

	ServiceURL string

	RPCBaseURL      string
	RPCToken        string
	RPCTimeout      time.Duration

	HMACSecret          []byte
	TimestampTolerance  uint64
}

// Parse builds a Config from args (typically os.Args[1:]) with
// environment variables as fallback, then validates it. Flags take
// priority over the matching environment variable.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("seafhttp-upload", flag.ContinueOnError)

	listenAddr := fs.String("listen", envOr("SEAFHTTP_LISTEN", DefaultListenAddr), "address to listen on")
	tempDir := fs.String("temp-dir", envOr("SEAFHTTP_TEMP_DIR", DefaultTempDir), "directory for in-flight upload temp files")
	maxUploadSize := fs.Int64("max-upload-size", envOrInt64("SEAFHTTP_MAX_UPLOAD_SIZE", DefaultMaxUploadSize), "maximum accepted file size in bytes")
	maxContentLine := fs.Int("max-content-line", envOrInt("SEAFHTTP_MAX_CONTENT_LINE", DefaultMaxContentLine), "maximum scan-ahead line length in bytes")
	serviceURL := fs.String("service-url", os.Getenv("SEAFHTTP_SERVICE_URL"), "base URL used to build success/error redirects")
	rpcBaseURL := fs.String("rpc-base-url", os.Getenv("SEAFHTTP_RPC_BASE_URL"), "base URL of the repository back end's HTTP API")
	rpcToken := fs.String("rpc-token", os.Getenv("SEAFHTTP_RPC_TOKEN"), "API token presented to the repository back end")
	rpcTimeout := fs.Duration("rpc-timeout", envOrDuration("SEAFHTTP_RPC_TIMEOUT", DefaultRPCTimeout), "timeout for each repository back-end call")
	hmacSecret := fs.String("hmac-secret", os.Getenv("SEAFHTTP_HMAC_SECRET"), "shared secret for signed upload tokens")
	tolerance := fs.Uint64("timestamp-tolerance", envOrUint64("SEAFHTTP_TIMESTAMP_TOLERANCE", DefaultTimestampTolerance), "allowed clock drift, in seconds, for signed requests")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parsing flags")
	}

	c := &Config{
		ListenAddr:         *listenAddr,
		TempDir:            *tempDir,
		MaxUploadSize:      *maxUploadSize,
		MaxContentLine:     *maxContentLine,
		ServiceURL:         *serviceURL,
		RPCBaseURL:         *rpcBaseURL,
		RPCToken:           *rpcToken,
		RPCTimeout:         *rpcTimeout,
		HMACSecret:         []byte(*hmacSecret),
		TimestampTolerance: *tolerance,
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validate rejects configurations that would fail later in a confusing
// way, matching the teacher's preference for failing fast at setup time
// rather than at the first affected request.
func (c *Config) validate() error {
	if c.TempDir == "" {
		return errors.New("temp-dir must not be empty")
	}
	if c.MaxUploadSize <= 0 {
		return errors.New("max-upload-size must be positive")
	}
	if c.MaxContentLine <= 0 {
		return errors.New("max-content-line must be positive")
	}
	if c.ServiceURL == "" {
		return errors.New("service-url is required")
	}
	if c.RPCBaseURL == "" {
		return errors.New("rpc-base-url is required")
	}
	if c.RPCTimeout <= 0 {
		return errors.New("rpc-timeout must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrUint64(key string, fallback uint64) uint64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
