package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"nifty-go/internal/encryption"
	"nifty-go/internal/registry"
)

// ErrLocked is returned by EncryptedStore.Get before Unlock has succeeded.
var ErrLocked = errors.New("content store is locked: passphrase required")

// Unlocker is implemented by stores that need a passphrase before reads.
type Unlocker interface {
	Unlock(passphrase string) error
	Locked() bool
}

// EncryptedStore encrypts content before handing it to the wrapped store.
// Writes need only the public key. Reads need Unlock first.
type EncryptedStore struct {
	inner     registry.ContentStore
	encryptor encryption.Encryptor

	mu  sync.RWMutex
	dec encryption.DecryptionContext
}

var (
	_ registry.ContentStore = (*EncryptedStore)(nil)
	_ Unlocker              = (*EncryptedStore)(nil)
)

func NewEncryptedStore(inner registry.ContentStore, encryptor encryption.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, encryptor: encryptor}
}

// Put encrypts size bytes from r and stores the ciphertext. The returned
// cid identifies the ciphertext.
func (s *EncryptedStore) Put(ctx context.Context, r io.Reader, size int64) (string, error) {
	var sealed bytes.Buffer
	counted := &countingReader{r: io.LimitReader(r, size+1)}
	if err := s.encryptor.Encrypt(counted, &sealed); err != nil {
		return "", fmt.Errorf("encrypting content: %w", err)
	}
	if counted.n != size {
		return "", fmt.Errorf("%w: expected %d bytes, got at least %d", registry.ErrSizeMismatch, size, counted.n)
	}
	return s.inner.Put(ctx, &sealed, int64(sealed.Len()))
}

func (s *EncryptedStore) Get(ctx context.Context, cid string, w io.Writer) error {
	s.mu.RLock()
	dec := s.dec
	s.mu.RUnlock()
	if dec == nil {
		return ErrLocked
	}

	var sealed bytes.Buffer
	if err := s.inner.Get(ctx, cid, &sealed); err != nil {
		return err
	}
	if err := dec.Decrypt(&sealed, w); err != nil {
		return fmt.Errorf("decrypting content %s: %w", cid, err)
	}
	return nil
}

// Unlock unseals the private key so Get can decrypt.
func (s *EncryptedStore) Unlock(passphrase string) error {
	dec, err := s.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking content store: %w", err)
	}
	s.mu.Lock()
	s.dec = dec
	s.mu.Unlock()
	return nil
}

func (s *EncryptedStore) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dec == nil
}

func (s *EncryptedStore) ValidateSetup(ctx context.Context) error {
	if !s.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys not found: run 'nifty encryption setup'")
	}
	return s.inner.ValidateSetup(ctx)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
