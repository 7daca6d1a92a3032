package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

var testTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates a new in-memory database with the schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func mustCreateFolder(t *testing.T, db *SQLiteDatabase, owner model.Account, name string) {
	t.Helper()
	if err := db.CreateFolder(context.Background(), &model.Folder{Owner: owner, Name: name, CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateFolder(%s, %q) error = %v", owner, name, err)
	}
}

func mustInsertFile(t *testing.T, db *SQLiteDatabase, token model.TokenID, owner model.Account, folder string) *model.FileRecord {
	t.Helper()
	f := &model.FileRecord{
		Token:       token,
		Owner:       owner,
		Folder:      folder,
		DisplayName: "photo.png",
		MimeType:    "image/png",
		ContentID:   "bafy-" + token.String(),
		CreatedAt:   testTime,
	}
	if err := db.InsertFile(context.Background(), f); err != nil {
		t.Fatalf("InsertFile(%s) error = %v", token, err)
	}
	return f
}

func TestSQLiteDatabase_Folders(t *testing.T) {
	ctx := context.Background()

	t.Run("find returns nil when missing", func(t *testing.T) {
		db := newTestDB(t)
		f, err := db.FindFolder(ctx, "alice", "Docs")
		if err != nil {
			t.Fatalf("FindFolder() error = %v", err)
		}
		if f != nil {
			t.Errorf("FindFolder() = %v, want nil", f)
		}
	})

	t.Run("create and find", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "Docs")

		f, err := db.FindFolder(ctx, "alice", "Docs")
		if err != nil {
			t.Fatalf("FindFolder() error = %v", err)
		}
		if f == nil || f.Owner != "alice" || f.Name != "Docs" {
			t.Fatalf("FindFolder() = %+v", f)
		}
		if !f.CreatedAt.Equal(testTime) {
			t.Errorf("CreatedAt = %v, want %v", f.CreatedAt, testTime)
		}

		if f, _ := db.FindFolder(ctx, "alice", "docs"); f != nil {
			t.Error("FindFolder() matched a different case")
		}
		if f, _ := db.FindFolder(ctx, "bob", "Docs"); f != nil {
			t.Error("FindFolder() matched another owner's folder")
		}
	})

	t.Run("duplicate create is a conflict", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "Docs")

		err := db.CreateFolder(ctx, &model.Folder{Owner: "alice", Name: "Docs", CreatedAt: testTime})
		if !errors.Is(err, registry.ErrConflict) {
			t.Errorf("CreateFolder() error = %v, want Conflict", err)
		}
	})

	t.Run("list is per owner and ordered", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "b")
		mustCreateFolder(t, db, "alice", "a")
		mustCreateFolder(t, db, "bob", "c")

		folders, err := db.ListFolders(ctx, "alice")
		if err != nil {
			t.Fatalf("ListFolders() error = %v", err)
		}
		if len(folders) != 2 || folders[0].Name != "a" || folders[1].Name != "b" {
			t.Errorf("ListFolders() = %v, want [a b]", folderNames(folders))
		}
	})
}

func TestSQLiteDatabase_RenameFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("repoints files", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "A")
		mustInsertFile(t, db, 1, "alice", "A")

		if err := db.RenameFolder(ctx, "alice", "A", "B"); err != nil {
			t.Fatalf("RenameFolder() error = %v", err)
		}

		f, err := db.FindFile(ctx, 1)
		if err != nil {
			t.Fatalf("FindFile() error = %v", err)
		}
		if f.Folder != "B" {
			t.Errorf("Folder = %q, want %q", f.Folder, "B")
		}
	})

	t.Run("missing folder", func(t *testing.T) {
		db := newTestDB(t)
		err := db.RenameFolder(ctx, "alice", "A", "B")
		if !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("RenameFolder() error = %v, want NotFound", err)
		}
	})

	t.Run("target taken", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "A")
		mustCreateFolder(t, db, "alice", "B")
		err := db.RenameFolder(ctx, "alice", "A", "B")
		if !errors.Is(err, registry.ErrConflict) {
			t.Errorf("RenameFolder() error = %v, want Conflict", err)
		}
	})
}

func TestSQLiteDatabase_DeleteFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades to files", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "Docs")
		mustCreateFolder(t, db, "alice", "Keep")
		mustInsertFile(t, db, 1, "alice", "Docs")
		mustInsertFile(t, db, 2, "alice", "Docs")
		mustInsertFile(t, db, 3, "alice", "Keep")
		mustInsertFile(t, db, 4, "alice", model.Unfiled)

		removed, err := db.DeleteFolder(ctx, "alice", "Docs")
		if err != nil {
			t.Fatalf("DeleteFolder() error = %v", err)
		}
		if removed != 2 {
			t.Errorf("DeleteFolder() removed = %d, want 2", removed)
		}

		files, err := db.ListFilesByOwner(ctx, "alice")
		if err != nil {
			t.Fatalf("ListFilesByOwner() error = %v", err)
		}
		if len(files) != 2 || files[0].Token != 3 || files[1].Token != 4 {
			t.Errorf("remaining files = %v, want tokens [3 4]", fileTokens(files))
		}

		// Provenance survives the record.
		history, err := db.ListTransfers(ctx, 1)
		if err != nil {
			t.Fatalf("ListTransfers() error = %v", err)
		}
		if len(history) != 1 {
			t.Errorf("ListTransfers() len = %d, want 1", len(history))
		}
	})

	t.Run("missing folder", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.DeleteFolder(ctx, "alice", "Docs")
		if !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("DeleteFolder() error = %v, want NotFound", err)
		}
	})
}

func TestSQLiteDatabase_Files(t *testing.T) {
	ctx := context.Background()

	t.Run("insert into missing folder", func(t *testing.T) {
		db := newTestDB(t)
		err := db.InsertFile(ctx, &model.FileRecord{
			Token: 1, Owner: "alice", Folder: "nope", DisplayName: "x", MimeType: "text/plain", ContentID: "cid", CreatedAt: testTime,
		})
		if !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("InsertFile() error = %v, want NotFound", err)
		}
	})

	t.Run("insert into another owner's folder", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "bob", "Docs")
		err := db.InsertFile(ctx, &model.FileRecord{
			Token: 1, Owner: "alice", Folder: "Docs", DisplayName: "x", MimeType: "text/plain", ContentID: "cid", CreatedAt: testTime,
		})
		if !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("InsertFile() error = %v, want NotFound", err)
		}
	})

	t.Run("duplicate token", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "Docs")
		mustInsertFile(t, db, 1, "alice", "Docs")
		err := db.InsertFile(ctx, &model.FileRecord{
			Token: 1, Owner: "alice", Folder: "Docs", DisplayName: "x", MimeType: "text/plain", ContentID: "cid", CreatedAt: testTime,
		})
		if !errors.Is(err, registry.ErrConflict) {
			t.Errorf("InsertFile() error = %v, want Conflict", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "Docs")
		want := mustInsertFile(t, db, 7, "alice", "Docs")

		got, err := db.FindFile(ctx, 7)
		if err != nil {
			t.Fatalf("FindFile() error = %v", err)
		}
		if got.Token != want.Token || got.Owner != want.Owner || got.Folder != want.Folder ||
			got.DisplayName != want.DisplayName || got.MimeType != want.MimeType ||
			got.ContentID != want.ContentID || !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("FindFile() = %+v, want %+v", got, want)
		}

		missing, err := db.FindFile(ctx, 8)
		if err != nil {
			t.Fatalf("FindFile() error = %v", err)
		}
		if missing != nil {
			t.Errorf("FindFile(8) = %v, want nil", missing)
		}
	})

	t.Run("move", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "A")
		mustCreateFolder(t, db, "alice", "B")
		mustInsertFile(t, db, 1, "alice", "A")

		if err := db.MoveFile(ctx, 1, "alice", "B"); err != nil {
			t.Fatalf("MoveFile() error = %v", err)
		}
		f, _ := db.FindFile(ctx, 1)
		if f.Folder != "B" {
			t.Errorf("Folder = %q, want B", f.Folder)
		}

		if err := db.MoveFile(ctx, 1, "bob", "B"); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("MoveFile() by non-owner error = %v, want NotFound", err)
		}
		if err := db.MoveFile(ctx, 1, "alice", "C"); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("MoveFile() into missing folder error = %v, want NotFound", err)
		}
	})

	t.Run("namespace", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "A")
		mustInsertFile(t, db, 1, "alice", "A")
		mustInsertFile(t, db, 2, "alice", model.Unfiled)

		folders, files, err := db.ListNamespace(ctx, "alice")
		if err != nil {
			t.Fatalf("ListNamespace() error = %v", err)
		}
		if len(folders) != 1 || len(files) != 2 {
			t.Fatalf("ListNamespace() = %d folders, %d files; want 1, 2", len(folders), len(files))
		}
		if !files[1].IsUnfiled() {
			t.Errorf("file 2 folder = %q, want unfiled", files[1].Folder)
		}
	})
}

func TestSQLiteDatabase_TransferFile(t *testing.T) {
	ctx := context.Background()

	t.Run("moves ownership and detaches", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateFolder(t, db, "alice", "Docs")
		mustInsertFile(t, db, 1, "alice", "Docs")

		later := testTime.Add(time.Hour)
		if err := db.TransferFile(ctx, 1, "alice", "carol", later); err != nil {
			t.Fatalf("TransferFile() error = %v", err)
		}

		f, _ := db.FindFile(ctx, 1)
		if f.Owner != "carol" || !f.IsUnfiled() {
			t.Errorf("after transfer = owner %s folder %q, want carol unfiled", f.Owner, f.Folder)
		}

		history, err := db.ListTransfers(ctx, 1)
		if err != nil {
			t.Fatalf("ListTransfers() error = %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("ListTransfers() len = %d, want 2", len(history))
		}
		if history[0].From != "" || history[0].To != "alice" {
			t.Errorf("mint entry = %+v", history[0])
		}
		if history[1].From != "alice" || history[1].To != "carol" || !history[1].TransferredAt.Equal(later) {
			t.Errorf("transfer entry = %+v", history[1])
		}
	})

	t.Run("stale owner is unauthorized", func(t *testing.T) {
		db := newTestDB(t)
		mustInsertFile(t, db, 1, "alice", model.Unfiled)
		if err := db.TransferFile(ctx, 1, "alice", "carol", testTime); err != nil {
			t.Fatalf("TransferFile() error = %v", err)
		}

		err := db.TransferFile(ctx, 1, "alice", "dave", testTime)
		if !errors.Is(err, registry.ErrUnauthorized) {
			t.Errorf("second TransferFile() error = %v, want Unauthorized", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		db := newTestDB(t)
		err := db.TransferFile(ctx, 99, "alice", "carol", testTime)
		if !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("TransferFile() error = %v, want NotFound", err)
		}
	})
}

func TestSQLiteDatabase_ReserveTokens(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first, err := db.ReserveTokens(ctx, 10)
	if err != nil {
		t.Fatalf("ReserveTokens() error = %v", err)
	}
	if first != 1 {
		t.Errorf("first block starts at %d, want 1", first)
	}

	second, err := db.ReserveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("ReserveTokens() error = %v", err)
	}
	if second != 11 {
		t.Errorf("second block starts at %d, want 11", second)
	}

	if _, err := db.ReserveTokens(ctx, 0); err == nil {
		t.Error("ReserveTokens(0) expected error, got nil")
	}
}

func TestSQLiteDatabase_ReserveTokensConcurrent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	const workers = 20
	starts := make([]model.TokenID, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := db.ReserveTokens(ctx, 3)
			if err != nil {
				t.Errorf("ReserveTokens() error = %v", err)
				return
			}
			starts[i] = first
		}()
	}
	wg.Wait()

	seen := make(map[model.TokenID]bool)
	for _, s := range starts {
		for id := s; id < s+3; id++ {
			if seen[id] {
				t.Fatalf("token %d reserved twice", id)
			}
			seen[id] = true
		}
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for i, name := range []string{"create_folder", "upload_file", "transfer_nft"} {
		id, err := db.CreateOperation(ctx, &model.Operation{
			Account:    "alice",
			Operation:  name,
			Parameters: "n=1",
			Status:     "running",
			StartedAt:  testTime.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if name != "transfer_nft" {
			if err := db.FinishOperation(ctx, id, "success", testTime.Add(time.Hour)); err != nil {
				t.Fatalf("FinishOperation() error = %v", err)
			}
		}
	}
	if _, err := db.CreateOperation(ctx, &model.Operation{Account: "bob", Operation: "x", Status: "running", StartedAt: testTime}); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	ops, err := db.ListOperations(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ListOperations() len = %d, want 2", len(ops))
	}
	if ops[0].Operation != "transfer_nft" || ops[0].FinishedAt != nil || ops[0].Status != "running" {
		t.Errorf("newest op = %+v", ops[0])
	}
	if ops[1].Operation != "upload_file" || ops[1].FinishedAt == nil || ops[1].Status != "success" {
		t.Errorf("second op = %+v", ops[1])
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mustCreateFolder(t, db, "alice", "Docs")

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	restored, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()

	if err := restored.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	f, err := restored.FindFolder(ctx, "alice", "Docs")
	if err != nil || f == nil {
		t.Errorf("backup FindFolder() = %v, %v; want folder", f, err)
	}
}

func folderNames(folders []*model.Folder) []string {
	var names []string
	for _, f := range folders {
		names = append(names, f.Name)
	}
	return names
}

func fileTokens(files []*model.FileRecord) []model.TokenID {
	var tokens []model.TokenID
	for _, f := range files {
		tokens = append(tokens, f.Token)
	}
	return tokens
}

func TestOpenConnection_SettingsApplyToEveryConnection(t *testing.T) {
	db, err := OpenConnection(filepath.Join(t.TempDir(), "nifty.db"))
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	defer db.Close()

	// No idle connections: each query below runs on a freshly opened one.
	db.SetMaxIdleConns(0)

	for i := 0; i < 3; i++ {
		var fk, timeout int
		if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("PRAGMA foreign_keys error = %v", err)
		}
		if fk != 1 {
			t.Errorf("connection %d: foreign_keys = %d, want 1", i, fk)
		}
		if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("PRAGMA busy_timeout error = %v", err)
		}
		if timeout != 5000 {
			t.Errorf("connection %d: busy_timeout = %d, want 5000", i, timeout)
		}
	}
}
