package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/snix/internal/backup"
	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	Search SearchConfig      `yaml:"search"`
	Auth   AuthConfig        `yaml:"auth"`
	Backup BackupConfig      `yaml:"backup"`
	Assist AssistConfig      `yaml:"assist"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Backup.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects where and how notebooks and snippets are persisted.
type StoreConfig struct {
	Path           string `yaml:"path"`
	Backend        string `yaml:"backend"`
	RecentCapacity int    `yaml:"recent_capacity"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = storage.BackendFile
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Backend, validation.In(storage.BackendFile, storage.BackendSQLite)),
		validation.Field(&c.RecentCapacity, validation.Min(1)),
	)
}

// SearchConfig holds the ranking weights.
type SearchConfig struct {
	Weights index.Weights `yaml:"weights"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	w := &c.Weights
	return validation.ValidateStruct(w,
		validation.Field(&w.TitleExact, validation.Min(0)),
		validation.Field(&w.TitleSubstring, validation.Min(0)),
		validation.Field(&w.TitleFuzzy, validation.Min(0)),
		validation.Field(&w.BodySubstring, validation.Min(0)),
		validation.Field(&w.BodyFuzzy, validation.Min(0)),
		validation.Field(&w.Description, validation.Min(0)),
		validation.Field(&w.Tag, validation.Min(0)),
		validation.Field(&w.TagSubstring, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// BackupConfig controls where backups go and how they are sealed.
//
// Dir defaults to a "backups" directory next to the store. When S3.Bucket is
// set, backups go to the bucket instead. Interval 0 disables automatic
// backups; Keep 0 keeps every automatic backup.
type BackupConfig struct {
	Dir        string        `yaml:"dir"`
	S3         S3Config      `yaml:"s3"`
	Compress   bool          `yaml:"compress"`
	Passphrase string        `yaml:"passphrase"`
	WorkFactor int           `yaml:"work_factor"`
	Interval   time.Duration `yaml:"interval"`
	Keep       int           `yaml:"keep"`
}

// S3Config holds the S3 backup bucket settings. Empty credentials fall back
// to the default AWS credential chain.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// Enabled reports whether a bucket is configured.
func (c *S3Config) Enabled() bool { return c.Bucket != "" }

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Keep, validation.Min(0)),
		validation.Field(&c.WorkFactor, validation.Min(0), validation.Max(30)),
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return errors.New("backup: s3 access_key_id and secret_access_key must be set together")
	}
	return nil
}

// BackupDir returns the directory used when no bucket is configured.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Store.Path, "backups")
}

// BackupOptions maps the backup section to manager options.
func (c *BackupConfig) BackupOptions() backup.Options {
	return backup.Options{
		Compress:   c.Compress,
		Passphrase: c.Passphrase,
		WorkFactor: c.WorkFactor,
		Keep:       c.Keep,
	}
}

// AssistConfig configures the LLM bridge. Host empty means OLLAMA_HOST or
// the ollama default; Model empty picks the first installed model.
type AssistConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Model   string `yaml:"model"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path:           "./data",
			Backend:        storage.BackendFile,
			RecentCapacity: 50,
		},
		Search: SearchConfig{
			Weights: index.DefaultWeights(),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Backup: BackupConfig{
			Compress: true,
		},
	}
}
