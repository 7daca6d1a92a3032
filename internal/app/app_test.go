package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nifty-go/internal/config"
	"nifty-go/internal/content"
	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Database.Type = "memory"
	cfg.Content.Type = "memory"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *NiftyApp {
	t.Helper()
	a, err := NewNiftyApp(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("NewNiftyApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewNiftyApp_RequiresMigration(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())

	if _, err := NewNiftyApp(context.Background(), cfg, "test"); err == nil || !strings.Contains(err.Error(), "nifty db migrate") {
		t.Fatalf("NewNiftyApp() before migrate error = %v", err)
	}

	if err := Migrate(cfg); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	a := newTestApp(t, cfg)

	if _, err := a.Service().CreateFolder(context.Background(), "alice", "Docs"); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if _, err := os.Stat(cfg.Content.Root); err != nil {
		t.Errorf("filesystem content root not created: %v", err)
	}
}

func TestNewNiftyApp_TokensSurviveRestart(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig(t.TempDir())
	if err := Migrate(cfg); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	upload := func(a *NiftyApp) model.TokenID {
		rec, err := a.Service().UploadFile(ctx, "alice", registry.UploadRequest{
			Folder: "Docs", DisplayName: "a.txt", Content: strings.NewReader("a"), Size: 1,
		})
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		return rec.Token
	}

	first, err := NewNiftyApp(ctx, cfg, "test")
	if err != nil {
		t.Fatalf("NewNiftyApp() error = %v", err)
	}
	if _, err := first.Service().CreateFolder(ctx, "alice", "Docs"); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	a := upload(first)
	first.Close()

	second := newTestApp(t, cfg)
	b := upload(second)

	if b <= a {
		t.Errorf("token after restart = %d, want > %d", b, a)
	}
}

func TestNewNiftyApp_InvalidIdentity(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Identity.Type = "jwt"
	cfg.Identity.Secret = "short"

	if _, err := NewNiftyApp(context.Background(), cfg, "test"); err == nil {
		t.Fatal("NewNiftyApp() with short jwt secret succeeded")
	}
}

func TestNiftyApp_Backup(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t))
	if _, err := a.Service().CreateFolder(ctx, "alice", "Docs"); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}

	cid, err := a.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	var buf bytes.Buffer
	if err := a.store.Get(ctx, cid, &buf); err != nil {
		t.Fatalf("Get(backup) error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("SQLite format 3\x00")) {
		t.Errorf("backup is not a SQLite database (%d bytes)", buf.Len())
	}
}

func TestNiftyApp_EncryptedContent(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Encryption.Type = "test"
	a := newTestApp(t, cfg)

	if !a.NeedsPassphrase() {
		t.Fatal("NeedsPassphrase() = false with encryption enabled")
	}
	if _, err := a.Service().CreateFolder(ctx, "alice", "Docs"); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	rec, err := a.Service().UploadFile(ctx, "alice", registry.UploadRequest{
		Folder: "Docs", DisplayName: "secret.txt", Content: strings.NewReader("secret"), Size: 6,
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	_, err = a.Service().ReadContent(ctx, "alice", rec.Token, &bytes.Buffer{})
	if !errors.Is(err, content.ErrLocked) {
		t.Fatalf("ReadContent() while locked error = %v, want ErrLocked", err)
	}

	if err := a.Unlock("anything"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var buf bytes.Buffer
	if _, err := a.Service().ReadContent(ctx, "alice", rec.Token, &buf); err != nil {
		t.Fatalf("ReadContent() error = %v", err)
	}
	if buf.String() != "secret" {
		t.Errorf("ReadContent() = %q, want %q", buf.String(), "secret")
	}
}

func TestNiftyApp_Health(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))
	if err := a.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
	if a.NeedsPassphrase() {
		t.Error("NeedsPassphrase() = true without encryption")
	}
	if err := a.Unlock(""); err != nil {
		t.Errorf("Unlock() without encryption error = %v", err)
	}
}

func TestNiftyApp_LogsToRunFile(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.LogLevel = "debug"
	a, err := NewNiftyApp(context.Background(), cfg, "folder list")
	if err != nil {
		t.Fatalf("NewNiftyApp() error = %v", err)
	}
	runID := a.run.ID
	a.Close()

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := string(data)
	for _, want := range []string{"\t" + runID + "\tcommand started", "\t" + runID + "\tcommand finished", "command=folder list"} {
		if !strings.Contains(got, want) {
			t.Errorf("log missing %q:\n%s", want, got)
		}
	}
}

func TestSetupEncryption(t *testing.T) {
	cfg := newTestConfig(t)
	if err := SetupEncryption(cfg, "pw"); !errors.Is(err, ErrEncryptionDisabled) {
		t.Errorf("SetupEncryption(none) error = %v, want ErrEncryptionDisabled", err)
	}

	cfg.Encryption.Type = "age"
	if err := SetupEncryption(cfg, "correct horse"); err != nil {
		t.Fatalf("SetupEncryption(age) error = %v", err)
	}
	for _, p := range []string{cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("key file %s missing: %v", p, err)
		}
	}
	if err := SetupEncryption(cfg, "correct horse"); err == nil {
		t.Error("second SetupEncryption() succeeded")
	}
}

func TestIssueToken(t *testing.T) {
	cfg := newTestConfig(t)
	if _, _, err := IssueToken(cfg, "alice"); err == nil {
		t.Error("IssueToken() with static identity succeeded")
	}

	cfg.Identity.Type = "jwt"
	cfg.Identity.Secret = strings.Repeat("s", config.MinSecretLength)
	token, expires, err := IssueToken(cfg, "alice")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if expires.IsZero() {
		t.Error("default ttl produced a non-expiring token")
	}

	a := newTestApp(t, cfg)
	if _, err := a.Service().CreateFolder(context.Background(), token, "Docs"); err != nil {
		t.Errorf("CreateFolder() with issued token error = %v", err)
	}
}
