package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultSessionTTLHours is the session lifetime used when the config leaves it unset.
const DefaultSessionTTLHours = 720

// Config represents the main configuration for mdnotes.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	GitHub     GitHubConfig     `toml:"github"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// ServerConfig controls the HTTP listener and session cookies.
type ServerConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	SecureCookies   bool   `toml:"secure_cookies"`
	SessionTTLHours int    `toml:"session_ttl_hours"` // defaults to 720 (30 days)
	Concurrency     int    `toml:"concurrency"`       // parallel blob fetches during pull; defaults to 8
}

// GitHubConfig holds the GitHub App credentials.
type GitHubConfig struct {
	AppID             int64  `toml:"app_id"`
	PrivateKeyPath    string `toml:"private_key_path"`    // PEM-encoded RSA key of the app
	APIURL            string `toml:"api_url,omitempty"`   // defaults to https://api.github.com
	WebhookSecretFile string `toml:"webhook_secret_file"` // empty disables the webhook endpoint
	InstallURL        string `toml:"install_url,omitempty"`

	// OAuth client of the app, for signing in with GitHub. An empty
	// ClientID disables GitHub sign-in.
	ClientID         string `toml:"client_id,omitempty"`
	ClientSecretFile string `toml:"client_secret_file,omitempty"`
	WebURL           string `toml:"web_url,omitempty"` // defaults to https://github.com
}

// EncryptionConfig holds paths to the age key pair used to encrypt database snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "plain"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible endpoint; enables path-style addressing
	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the notes database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config rooted at baseDir with default paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:5173",
			SessionTTLHours: DefaultSessionTTLHours,
			Concurrency:     8,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		GitHub: GitHubConfig{
			APIURL:            "https://api.github.com",
			WebURL:            "https://github.com",
			PrivateKeyPath:    filepath.Join(baseDir, "keys", "github-app.pem"),
			WebhookSecretFile: filepath.Join(baseDir, "keys", "webhook-secret"),
			ClientSecretFile:  filepath.Join(baseDir, "keys", "oauth-client-secret"),
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "mdnotes.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "mdnotes.key"),
		},
	}
}

// Validate checks cross-field constraints that the decoder cannot express.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database.data_dir is required for type sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type: %q", c.Database.Type)
	}
	if c.GitHub.ClientID != "" && c.GitHub.ClientSecretFile == "" {
		return fmt.Errorf("github.client_secret_file is required when github.client_id is set")
	}
	if c.Server.SessionTTLHours < 0 {
		return fmt.Errorf("server.session_ttl_hours must not be negative")
	}
	for _, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vault of type %q has no name", v.Type)
		}
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Server.SessionTTLHours == 0 {
		cfg.Server.SessionTTLHours = DefaultSessionTTLHours
	}
	if cfg.Server.Concurrency <= 0 {
		cfg.Server.Concurrency = 8
	}
	if cfg.GitHub.APIURL == "" {
		cfg.GitHub.APIURL = "https://api.github.com"
	}
	if cfg.GitHub.WebURL == "" {
		cfg.GitHub.WebURL = "https://github.com"
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
