package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/parser"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Vault       VaultConfig       `yaml:"vault"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	State       StateConfig       `yaml:"state"`
	Auth        AuthConfig        `yaml:"auth"`
	Frontmatter FrontmatterConfig `yaml:"frontmatter"`
	Render      RenderConfig      `yaml:"render"`
	Events      EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.State.Validate(); err != nil {
		return err
	}
	if err := c.Frontmatter.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StateConfig locates folio's own files: profiles.yaml and one workspace
// directory per profile.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// ProfilesPath returns the path of the profile store.
func (c *StateConfig) ProfilesPath() string {
	return filepath.Join(c.Dir, "profiles.yaml")
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// FrontmatterConfig names the frontmatter fields folio reads and writes.
type FrontmatterConfig struct {
	UIDKey      string `yaml:"uid_key"`
	ContextsKey string `yaml:"contexts_key"`
	TitleKey    string `yaml:"title_key"`

	// Delimiter splits a publish contexts value written as a string.
	Delimiter string `yaml:"delimiter"`
}

// Keys converts the configuration to parser keys.
func (c *FrontmatterConfig) Keys() parser.Keys {
	return parser.Keys{
		UID:       c.UIDKey,
		Contexts:  c.ContextsKey,
		Title:     c.TitleKey,
		Delimiter: c.Delimiter,
	}
}

// Validate validates the frontmatter configuration.
func (c *FrontmatterConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.UIDKey, validation.Required),
		validation.Field(&c.ContextsKey, validation.Required),
		validation.Field(&c.TitleKey, validation.Required),
		validation.Field(&c.Delimiter, validation.Required),
	); err != nil {
		return fmt.Errorf("frontmatter: %w", err)
	}
	if c.UIDKey == c.ContextsKey || c.UIDKey == c.TitleKey || c.ContextsKey == c.TitleKey {
		return fmt.Errorf("frontmatter: keys must be distinct")
	}
	return nil
}

// RenderConfig tunes Markdown rendering.
type RenderConfig struct {
	// Concurrency bounds link lookups per note. Zero uses the renderer default.
	Concurrency int `yaml:"concurrency"`
}

// EventsConfig tunes the SSE broker.
type EventsConfig struct {
	LinksThrottle time.Duration `yaml:"links_throttle"`
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./folio.db",
		},
		State: StateConfig{
			Dir: "./.folio",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Frontmatter: FrontmatterConfig{
			UIDKey:      "uid",
			ContextsKey: "publish-contexts",
			TitleKey:    "title",
			Delimiter:   ",",
		},
		Events: EventsConfig{
			LinksThrottle: 2 * time.Second,
		},
	}
}
