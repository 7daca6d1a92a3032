package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for nifty.
type Config struct {
	BaseDir    string           `toml:"base_dir" validate:"required"`
	LogDir     string           `toml:"log_dir" validate:"required"`
	LogLevel   string           `toml:"log_level" validate:"oneof=debug info warn error"`
	Database   DatabaseConfig   `toml:"database"`
	Content    ContentConfig    `toml:"content"`
	Encryption EncryptionConfig `toml:"encryption"`
	Identity   IdentityConfig   `toml:"identity"`
	Registry   RegistryConfig   `toml:"registry"`
	Server     ServerConfig     `toml:"server"`
}

// DatabaseConfig represents configuration for the registry database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"oneof=sqlite memory"`
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ContentConfig selects the content store uploads are pushed to.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ContentConfig struct {
	Type string `toml:"type" validate:"oneof=memory filesystem s3 pinata"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // MinIO, Localstack

	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// Pinata-specific fields (only used when Type == "pinata")
	PinataJWT       string `toml:"pinata_jwt,omitempty"`
	PinataGateway   string `toml:"pinata_gateway,omitempty"`
	PinataUploadURL string `toml:"pinata_upload_url,omitempty"`
}

// EncryptionConfig controls optional encryption of content before it is stored.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"oneof=none age test"`
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// IdentityConfig selects how caller credentials are turned into accounts.
type IdentityConfig struct {
	Type     string   `toml:"type" validate:"oneof=static jwt"`
	Secret   string   `toml:"secret,omitempty"` // type=jwt, at least 32 bytes; NIFTY_JWT_SECRET overrides
	Issuer   string   `toml:"issuer,omitempty"`
	TokenTTL Duration `toml:"token_ttl,omitempty"`
}

// RegistryConfig bounds user input and token allocation.
type RegistryConfig struct {
	MaxFolderNameLength  int    `toml:"max_folder_name_length" validate:"gt=0,lte=1024"`
	MaxDisplayNameLength int    `toml:"max_display_name_length" validate:"gt=0,lte=4096"`
	MaxMimeTypeLength    int    `toml:"max_mime_type_length" validate:"gt=0,lte=1024"`
	MaxUploadSize        int64  `toml:"max_upload_size" validate:"gt=0"`
	TokenBlockSize       uint64 `toml:"token_block_size" validate:"gt=0,lte=1000000"`
}

// ServerConfig configures `nifty serve`.
type ServerConfig struct {
	Listen          string   `toml:"listen" validate:"required,hostname_port"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// NewConfig creates a Config rooted at baseDir with every default applied.
func NewConfig(baseDir string) *Config {
	cfg := &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Content: ContentConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "content"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "nifty.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "nifty.key"),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
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

// ReadFromFile reads a Config from path, fills in defaults and
// environment overrides, and validates the result.
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

	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold secrets.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
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

// Init writes cfg to path. It fails if a config file already exists there.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
