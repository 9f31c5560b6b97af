package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Destination types
const (
	DestinationAzure = "azure"
	DestinationMinIO = "minio"
)

// Config represents the application configuration.
// The file format is JSON; yaml.v3 reads it since JSON is valid YAML.
type Config struct {
	Queue          string `yaml:"QUEUE"`
	Region         string `yaml:"REGION"`
	S3Region       string `yaml:"S3REGION"`
	Profile        string `yaml:"PROFILE"`
	StorageAccount string `yaml:"STORAGE_ACCOUNT"`
	StorageKey     string `yaml:"STORAGE_KEY"`
	Container      string `yaml:"CONTAINER"`

	DestinationType  string `yaml:"DESTINATION_TYPE"`
	BlobEndpoint     string `yaml:"BLOB_ENDPOINT"`
	UseAzureIdentity bool   `yaml:"USE_AZURE_IDENTITY"`

	WaitTime         time.Duration `yaml:"WAIT_TIME"`
	CopyPollInterval time.Duration `yaml:"COPY_POLL_INTERVAL"`
	CopyPollAttempts int           `yaml:"COPY_POLL_ATTEMPTS"`
	MaxMessages      int           `yaml:"MAX_MESSAGES"`
	MetricsAddr      string        `yaml:"METRICS_ADDR"`
	LogLevel         string        `yaml:"LOG_LEVEL"`
}

// env holds the environment overrides
type env struct {
	ConfigFile string `env:"CONFIG_FILE"`
	StorageKey string `env:"STORAGE_KEY"`
}

// RemoteFetcher downloads a config file that is not on the local file system
type RemoteFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader resolves the configuration from defaults, a config file, the environment and flags
type Loader struct {
	Flags    *pflag.FlagSet
	Lookuper envconfig.Lookuper
	Remote   RemoteFetcher
}

// BindFlags registers the command line flags read by Load
func BindFlags(flags *pflag.FlagSet) {
	flags.String("config-file", "", "config file containing required config (local path or bucket/key in S3)")
	flags.String("env-file", "", "dotenv file to load into the environment before reading config")
	flags.String("queue", "", "Queue name")
	flags.String("region", "", "AWS Region that the Queue is in")
	flags.String("s3region", "", "The region prefix for s3 downloads")
	flags.String("profile", "", "The name of an aws cli profile to use")
	flags.String("storage", "", "The name of storage account to use")
	flags.String("key", "", "The key for the storage account")
	flags.String("container", "", "The container for the blob")
	flags.Bool("debug", false, "Set debug logging")
	flags.String("destination", DestinationAzure, "Destination type (azure/minio)")
	flags.String("blob-endpoint", "", "Destination endpoint (default https://<storage>.blob.core.windows.net/)")
	flags.Bool("azure-identity", false, "Authenticate to Azure with the default credential chain instead of a key")
	flags.Duration("wait", 60*time.Second, "Wait between poll cycles")
	flags.Duration("copy-poll-interval", 5*time.Second, "Wait between copy status checks")
	flags.Int("copy-poll-attempts", 50, "Copy status checks before giving up on a copy")
	flags.Int("max-messages", 10, "Messages to receive per batch (1-10)")
	flags.String("metrics-addr", ":8080", "Metrics listen address, empty to disable")
	flags.String("log-level", "info", "Log level (debug/info/warn/error)")
}

func defaults() *Config {
	return &Config{
		DestinationType:  DestinationAzure,
		WaitTime:         60 * time.Second,
		CopyPollInterval: 5 * time.Second,
		CopyPollAttempts: 50,
		MaxMessages:      10,
		MetricsAddr:      ":8080",
		LogLevel:         "info",
	}
}

// Load loads configuration; later sources override earlier ones:
// defaults, config file, STORAGE_KEY environment variable, command line flags
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	var e env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &e,
		Lookuper: l.lookuper(),
	}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	configFile := e.ConfigFile
	if l.Flags != nil && l.Flags.Changed("config-file") {
		configFile, _ = l.Flags.GetString("config-file")
	}

	if configFile != "" {
		if err := l.loadFromFile(ctx, cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if e.StorageKey != "" {
		cfg.StorageKey = e.StorageKey
	}

	if l.Flags != nil {
		if err := loadFromFlags(cfg, l.Flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (l *Loader) lookuper() envconfig.Lookuper {
	if l.Lookuper != nil {
		return l.Lookuper
	}
	return envconfig.OsLookuper()
}

func (l *Loader) loadFromFile(ctx context.Context, cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		bucket, key, ok := SplitRemotePath(filename)
		if !ok || l.Remote == nil {
			return err
		}
		data, err = l.Remote.Fetch(ctx, bucket, key)
		if err != nil {
			return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
		}
	} else if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// SplitRemotePath splits a bucket/key config path
func SplitRemotePath(path string) (bucket, key string, ok bool) {
	bucket, key, ok = strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" || strings.HasPrefix(path, ".") {
		return "", "", false
	}
	return bucket, key, true
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("queue") {
		cfg.Queue, _ = flags.GetString("queue")
	}
	if flags.Changed("region") {
		cfg.Region, _ = flags.GetString("region")
	}
	if flags.Changed("s3region") {
		cfg.S3Region, _ = flags.GetString("s3region")
	}
	if flags.Changed("profile") {
		cfg.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("storage") {
		cfg.StorageAccount, _ = flags.GetString("storage")
	}
	if flags.Changed("key") {
		cfg.StorageKey, _ = flags.GetString("key")
	}
	if flags.Changed("container") {
		cfg.Container, _ = flags.GetString("container")
	}

	if flags.Changed("destination") {
		cfg.DestinationType, _ = flags.GetString("destination")
	}
	if flags.Changed("blob-endpoint") {
		cfg.BlobEndpoint, _ = flags.GetString("blob-endpoint")
	}
	if flags.Changed("azure-identity") {
		cfg.UseAzureIdentity, _ = flags.GetBool("azure-identity")
	}

	if flags.Changed("wait") {
		cfg.WaitTime, _ = flags.GetDuration("wait")
	}
	if flags.Changed("copy-poll-interval") {
		cfg.CopyPollInterval, _ = flags.GetDuration("copy-poll-interval")
	}
	if flags.Changed("copy-poll-attempts") {
		cfg.CopyPollAttempts, _ = flags.GetInt("copy-poll-attempts")
	}
	if flags.Changed("max-messages") {
		cfg.MaxMessages, _ = flags.GetInt("max-messages")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if debug, _ := flags.GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}

	return nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Queue == "" {
		errs = append(errs, fmt.Errorf("queue name is required"))
	}
	if c.Region == "" {
		errs = append(errs, fmt.Errorf("region is required"))
	}
	if c.S3Region == "" {
		errs = append(errs, fmt.Errorf("s3 region prefix is required"))
	}
	if c.Container == "" {
		errs = append(errs, fmt.Errorf("container is required"))
	}

	switch c.DestinationType {
	case DestinationAzure:
		if c.StorageAccount == "" && c.BlobEndpoint == "" {
			errs = append(errs, fmt.Errorf("storage account is required"))
		}
		if c.StorageKey == "" && !c.UseAzureIdentity {
			errs = append(errs, fmt.Errorf("storage key is required"))
		}
	case DestinationMinIO:
		if c.BlobEndpoint == "" {
			errs = append(errs, fmt.Errorf("blob endpoint is required for minio"))
		}
		if c.StorageAccount == "" || c.StorageKey == "" {
			errs = append(errs, fmt.Errorf("storage account and key are required for minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown destination type %q", c.DestinationType))
	}

	if c.WaitTime <= 0 {
		errs = append(errs, fmt.Errorf("wait time must be positive"))
	}
	if c.CopyPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("copy poll interval must be positive"))
	}
	if c.CopyPollAttempts <= 0 {
		errs = append(errs, fmt.Errorf("copy poll attempts must be positive"))
	}
	if c.MaxMessages < 1 || c.MaxMessages > 10 {
		errs = append(errs, fmt.Errorf("max messages must be between 1 and 10"))
	}

	return errors.Join(errs...)
}
