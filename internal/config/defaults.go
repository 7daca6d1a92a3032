package config

import (
	"os"
	"strings"
	"time"
)

const (
	DefaultLogLevel             = "info"
	DefaultMaxFolderNameLength  = 64
	DefaultMaxDisplayNameLength = 255
	DefaultMaxMimeTypeLength    = 127
	DefaultMaxUploadSize        = 32 << 20
	DefaultTokenBlockSize       = 64
	DefaultListen               = "127.0.0.1:8080"
	DefaultPinataGateway        = "gateway.pinata.cloud"
	DefaultPinataUploadURL      = "https://uploads.pinata.cloud/v3/files"
	DefaultTokenTTL             = 24 * time.Hour
)

// ApplyDefaults fills every zero value with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Content.Type == "" {
		cfg.Content.Type = "filesystem"
	}
	if cfg.Content.Type == "pinata" {
		if cfg.Content.PinataGateway == "" {
			cfg.Content.PinataGateway = DefaultPinataGateway
		}
		if cfg.Content.PinataUploadURL == "" {
			cfg.Content.PinataUploadURL = DefaultPinataUploadURL
		}
	}
	if cfg.Encryption.Type == "" {
		cfg.Encryption.Type = "none"
	}

	if cfg.Identity.Type == "" {
		cfg.Identity.Type = "static"
	}
	if cfg.Identity.Issuer == "" {
		cfg.Identity.Issuer = "nifty"
	}
	if cfg.Identity.TokenTTL == 0 {
		cfg.Identity.TokenTTL = Duration(DefaultTokenTTL)
	}

	applyRegistryDefaults(&cfg.Registry)
	applyServerDefaults(&cfg.Server)
}

func applyRegistryDefaults(r *RegistryConfig) {
	if r.MaxFolderNameLength == 0 {
		r.MaxFolderNameLength = DefaultMaxFolderNameLength
	}
	if r.MaxDisplayNameLength == 0 {
		r.MaxDisplayNameLength = DefaultMaxDisplayNameLength
	}
	if r.MaxMimeTypeLength == 0 {
		r.MaxMimeTypeLength = DefaultMaxMimeTypeLength
	}
	if r.MaxUploadSize == 0 {
		r.MaxUploadSize = DefaultMaxUploadSize
	}
	if r.TokenBlockSize == 0 {
		r.TokenBlockSize = DefaultTokenBlockSize
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(30 * time.Second)
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = Duration(60 * time.Second)
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = Duration(10 * time.Second)
	}
}

// ApplyEnv lets secrets come from the environment instead of the config file.
//   - NIFTY_JWT_SECRET: identity.secret
//   - NIFTY_PINATA_JWT: content.pinata_jwt
//   - NIFTY_S3_SECRET_ACCESS_KEY: content.s3_secret_access_key
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("NIFTY_JWT_SECRET"); v != "" {
		cfg.Identity.Secret = v
	}
	if v := os.Getenv("NIFTY_PINATA_JWT"); v != "" {
		cfg.Content.PinataJWT = v
	}
	if v := os.Getenv("NIFTY_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Content.S3SecretAccessKey = v
	}
}
