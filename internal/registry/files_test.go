package registry_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"nifty-go/internal/content"
	"nifty-go/internal/model"
	"nifty-go/internal/registry"
	"nifty-go/internal/testutil"
)

func TestService_UploadFile(t *testing.T) {
	ctx := context.Background()

	t.Run("stores bytes and mints a token", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		mustFolder(t, r, "alice", "Docs")

		rec := mustUpload(t, r, "alice", "Docs", "hello.txt", "hello")
		if rec.Token == 0 {
			t.Error("UploadFile() token = 0")
		}
		if rec.ContentID != testutil.SHA256Hex([]byte("hello")) {
			t.Errorf("UploadFile() cid = %q, want sha256 of content", rec.ContentID)
		}
		if rec.Owner != "alice" || rec.Folder != "Docs" || rec.MimeType != "text/plain" {
			t.Errorf("UploadFile() = %+v", rec)
		}

		var buf bytes.Buffer
		if _, err := r.Service.ReadContent(ctx, "alice", rec.Token, &buf); err != nil {
			t.Fatalf("ReadContent() error = %v", err)
		}
		if buf.String() != "hello" {
			t.Errorf("ReadContent() = %q, want %q", buf.String(), "hello")
		}
	})

	t.Run("registers an existing content id", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		mustFolder(t, r, "alice", "Docs")

		rec, err := r.Service.UploadFile(ctx, "alice", registry.UploadRequest{
			Folder:      "Docs",
			DisplayName: "pinned.png",
			MimeType:    "image/png",
			ContentID:   "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
		})
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		if r.Content.Len() != 0 {
			t.Errorf("content store touched for a content id upload")
		}
		if rec.ContentID != "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy" {
			t.Errorf("UploadFile() cid = %q", rec.ContentID)
		}
	})

	t.Run("identical content mints distinct tokens", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		mustFolder(t, r, "alice", "Docs")

		first := mustUpload(t, r, "alice", "Docs", "same.txt", "same")
		second := mustUpload(t, r, "alice", "Docs", "same.txt", "same")
		if first.Token == second.Token {
			t.Errorf("tokens equal: %s", first.Token)
		}
		if first.ContentID != second.ContentID {
			t.Errorf("content ids differ for identical bytes")
		}
	})

	t.Run("default mime type", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		mustFolder(t, r, "alice", "Docs")
		rec, err := r.Service.UploadFile(ctx, "alice", registry.UploadRequest{
			Folder: "Docs", DisplayName: "blob", Content: strings.NewReader("x"), Size: 1,
		})
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		if rec.MimeType != "application/octet-stream" {
			t.Errorf("MimeType = %q, want application/octet-stream", rec.MimeType)
		}
	})

	t.Run("missing folder is NotFound and stores nothing", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		_, err := r.Service.UploadFile(ctx, "alice", registry.UploadRequest{
			Folder: "Nope", DisplayName: "a", Content: strings.NewReader("a"), Size: 1,
		})
		if !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("UploadFile() error = %v, want NotFound", err)
		}
		if r.Content.Len() != 0 {
			t.Errorf("content stored for a rejected upload")
		}
	})

	t.Run("content not matching declared size is rejected", func(t *testing.T) {
		tests := []struct {
			name string
			data string
			size int64
		}{
			{"longer", "hello world", 5},
			{"shorter", "hello", 11},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := testutil.NewTestRegistry(t)
				mustFolder(t, r, "alice", "Docs")

				_, err := r.Service.UploadFile(ctx, "alice", registry.UploadRequest{
					Folder: "Docs", DisplayName: "a.txt", Content: strings.NewReader(tt.data), Size: tt.size,
				})
				if !errors.Is(err, registry.ErrInvalidInput) {
					t.Errorf("UploadFile() error = %v, want InvalidInput", err)
				}
				if r.Content.Len() != 0 {
					t.Errorf("Len() = %d, want 0", r.Content.Len())
				}
				files, err := r.Service.GetUserFiles(ctx, "alice")
				if err != nil {
					t.Fatalf("GetUserFiles() error = %v", err)
				}
				if len(files) != 0 {
					t.Errorf("GetUserFiles() = %d records, want 0", len(files))
				}
			})
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		limits := registry.DefaultLimits()
		limits.MaxUploadSize = 8
		r := testutil.NewTestRegistry(t, testutil.WithLimits(limits))
		mustFolder(t, r, "alice", "Docs")

		tests := map[string]registry.UploadRequest{
			"no folder":       {DisplayName: "a", ContentID: "cid"},
			"no display name": {Folder: "Docs", ContentID: "cid"},
			"long name":       {Folder: "Docs", DisplayName: strings.Repeat("n", 256), ContentID: "cid"},
			"control in name": {Folder: "Docs", DisplayName: "a\nb", ContentID: "cid"},
			"bad mime":        {Folder: "Docs", DisplayName: "a", MimeType: "not a mime", ContentID: "cid"},
			"long mime":       {Folder: "Docs", DisplayName: "a", MimeType: "text/" + strings.Repeat("x", 128), ContentID: "cid"},
			"neither":         {Folder: "Docs", DisplayName: "a"},
			"both":            {Folder: "Docs", DisplayName: "a", ContentID: "cid", Content: strings.NewReader("x"), Size: 1},
			"negative size":   {Folder: "Docs", DisplayName: "a", Content: strings.NewReader("x"), Size: -1},
			"too large":       {Folder: "Docs", DisplayName: "a", Content: strings.NewReader("123456789"), Size: 9},
			"spaces in cid":   {Folder: "Docs", DisplayName: "a", ContentID: "a cid"},
		}
		for name, req := range tests {
			t.Run(name, func(t *testing.T) {
				_, err := r.Service.UploadFile(ctx, "alice", req)
				if !errors.Is(err, registry.ErrInvalidInput) {
					t.Errorf("UploadFile() error = %v, want InvalidInput", err)
				}
			})
		}
	})

	t.Run("content store failure is DependencyUnavailable", func(t *testing.T) {
		var flaky *testutil.FlakyContentStore
		r := testutil.NewTestRegistry(t, testutil.WithContentStore(func(m *content.MemoryStore) registry.ContentStore {
			flaky = testutil.NewFlakyContentStore(m)
			return flaky
		}))
		mustFolder(t, r, "alice", "Docs")
		flaky.SetFailing(true)

		_, err := r.Service.UploadFile(ctx, "alice", registry.UploadRequest{
			Folder: "Docs", DisplayName: "a", Content: strings.NewReader("a"), Size: 1,
		})
		if !errors.Is(err, registry.ErrDependencyUnavailable) {
			t.Fatalf("UploadFile() error = %v, want DependencyUnavailable", err)
		}
		if strings.Contains(err.Error(), testutil.ErrStoreDown.Error()) {
			t.Errorf("error %q leaks the collaborator's message", err)
		}

		files, err := r.Service.GetUserFiles(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUserFiles() error = %v", err)
		}
		if len(files) != 0 {
			t.Errorf("GetUserFiles() = %v, want no records after failed upload", files)
		}
	})
}

func TestService_UploadConcurrentTokensUnique(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewTestRegistry(t, testutil.WithTokenBlockSize(4))

	accounts := []string{"a1", "a2", "a3", "a4", "a5"}
	for _, a := range accounts {
		mustFolder(t, r, a, "F")
	}

	const perAccount = 12
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens = make(map[model.TokenID]bool)
	)
	for _, a := range accounts {
		for i := range perAccount {
			wg.Add(1)
			go func() {
				defer wg.Done()
				data := fmt.Sprintf("%s-%d", a, i)
				rec, err := r.Service.UploadFile(ctx, a, registry.UploadRequest{
					Folder: "F", DisplayName: data, Content: strings.NewReader(data), Size: int64(len(data)),
				})
				if err != nil {
					t.Errorf("UploadFile() error = %v", err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if tokens[rec.Token] {
					t.Errorf("token %s issued twice", rec.Token)
				}
				tokens[rec.Token] = true
			}()
		}
	}
	wg.Wait()

	if len(tokens) != len(accounts)*perAccount {
		t.Errorf("got %d distinct tokens, want %d", len(tokens), len(accounts)*perAccount)
	}
}

func TestService_MoveFile(t *testing.T) {
	ctx := context.Background()

	t.Run("moves between own folders", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		mustFolder(t, r, "alice", "A")
		mustFolder(t, r, "alice", "B")
		rec := mustUpload(t, r, "alice", "A", "a.txt", "a")

		moved, err := r.Service.MoveFile(ctx, "alice", rec.Token, "B")
		if err != nil {
			t.Fatalf("MoveFile() error = %v", err)
		}
		if moved.Folder != "B" {
			t.Errorf("MoveFile().Folder = %q, want B", moved.Folder)
		}
		got, _ := r.Service.GetFile(ctx, "alice", rec.Token)
		if got.Folder != "B" {
			t.Errorf("GetFile().Folder = %q, want B", got.Folder)
		}
	})

	t.Run("files an unfiled record", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		mustFolder(t, r, "alice", "A")
		mustFolder(t, r, "bob", "Inbox")
		rec := mustUpload(t, r, "alice", "A", "a.txt", "a")
		if _, err := r.Service.TransferToken(ctx, "alice", rec.Token, "bob"); err != nil {
			t.Fatalf("TransferToken() error = %v", err)
		}

		moved, err := r.Service.MoveFile(ctx, "bob", rec.Token, "Inbox")
		if err != nil {
			t.Fatalf("MoveFile() error = %v", err)
		}
		if moved.Folder != "Inbox" {
			t.Errorf("MoveFile().Folder = %q, want Inbox", moved.Folder)
		}
	})

	t.Run("errors", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		mustFolder(t, r, "alice", "A")
		mustFolder(t, r, "bob", "B")
		rec := mustUpload(t, r, "alice", "A", "a.txt", "a")

		tests := []struct {
			name    string
			account string
			token   model.TokenID
			folder  string
			want    error
		}{
			{"unknown token", "alice", 9999, "A", registry.ErrNotFound},
			{"not the owner", "bob", rec.Token, "B", registry.ErrNotFound},
			{"missing folder", "alice", rec.Token, "Nope", registry.ErrNotFound},
			{"other account's folder", "alice", rec.Token, "B", registry.ErrNotFound},
			{"empty folder", "alice", rec.Token, "", registry.ErrInvalidInput},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := r.Service.MoveFile(ctx, tt.account, tt.token, tt.folder)
				if !errors.Is(err, tt.want) {
					t.Errorf("MoveFile() error = %v, want %v", err, tt.want)
				}
			})
		}
	})
}

func TestService_GetUserFilesReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewTestRegistry(t)
	mustFolder(t, r, "alice", "Docs")

	for i := range 5 {
		rec := mustUpload(t, r, "alice", "Docs", fmt.Sprintf("%d.txt", i), fmt.Sprint(i))
		files, err := r.Service.GetUserFiles(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUserFiles() error = %v", err)
		}
		if len(files) != i+1 {
			t.Fatalf("GetUserFiles() = %d files, want %d", len(files), i+1)
		}
		found := false
		for _, f := range files {
			if f.Token == rec.Token {
				found = true
			}
		}
		if !found {
			t.Errorf("GetUserFiles() missing token %s right after upload", rec.Token)
		}
	}

	other, err := r.Service.GetUserFiles(ctx, "bob")
	if err != nil {
		t.Fatalf("GetUserFiles() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("bob sees %d of alice's files", len(other))
	}
}

func TestService_ReadContent(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		r := testutil.NewTestRegistry(t)
		_, err := r.Service.ReadContent(ctx, "alice", 42, &bytes.Buffer{})
		if !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("ReadContent() error = %v, want NotFound", err)
		}
	})

	t.Run("store down", func(t *testing.T) {
		var flaky *testutil.FlakyContentStore
		r := testutil.NewTestRegistry(t, testutil.WithContentStore(func(m *content.MemoryStore) registry.ContentStore {
			flaky = testutil.NewFlakyContentStore(m)
			return flaky
		}))
		mustFolder(t, r, "alice", "Docs")
		rec := mustUpload(t, r, "alice", "Docs", "a", "a")
		flaky.SetFailing(true)

		_, err := r.Service.ReadContent(ctx, "alice", rec.Token, &bytes.Buffer{})
		if !errors.Is(err, registry.ErrDependencyUnavailable) {
			t.Errorf("ReadContent() error = %v, want DependencyUnavailable", err)
		}
	})
}
