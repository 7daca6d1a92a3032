package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: "Config.LogLevel",
		},
		{
			name:    "unknown database type",
			mutate:  func(c *Config) { c.Database.Type = "postgres" },
			wantErr: "Config.Database.Type",
		},
		{
			name:    "sqlite without data dir",
			mutate:  func(c *Config) { c.Database.DataDir = "" },
			wantErr: "data_dir is required",
		},
		{
			name:    "filesystem content without root",
			mutate:  func(c *Config) { c.Content.Root = "" },
			wantErr: "root is required",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Content = ContentConfig{Type: "s3"} },
			wantErr: "s3_bucket is required",
		},
		{
			name:    "pinata without jwt",
			mutate:  func(c *Config) { c.Content = ContentConfig{Type: "pinata"} },
			wantErr: "pinata_jwt",
		},
		{
			name:    "age without key paths",
			mutate:  func(c *Config) { c.Encryption = EncryptionConfig{Type: "age"} },
			wantErr: "public_key_path",
		},
		{
			name: "jwt with short secret",
			mutate: func(c *Config) {
				c.Identity.Type = "jwt"
				c.Identity.Secret = "too-short"
			},
			wantErr: "at least 32 bytes",
		},
		{
			name: "jwt with long secret",
			mutate: func(c *Config) {
				c.Identity.Type = "jwt"
				c.Identity.Secret = strings.Repeat("s", 32)
			},
		},
		{
			name:    "zero upload size",
			mutate:  func(c *Config) { c.Registry.MaxUploadSize = 0 },
			wantErr: "Config.Registry.MaxUploadSize",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *Config) { c.Server.Listen = "not an address" },
			wantErr: "Config.Server.Listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/nifty")
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_SecretNotEchoed(t *testing.T) {
	cfg := NewConfig("/data/nifty")
	cfg.Identity.Type = "jwt"
	cfg.Identity.Secret = "hunter2"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("Validate() error leaks the secret: %q", err.Error())
	}
}
