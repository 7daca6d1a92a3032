package content

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"

	"nifty-go/internal/registry"
)

// ErrNotFound is returned by Get when no content is stored under a cid.
var ErrNotFound = errors.New("content not found")

var sha256CID = regexp.MustCompile(`^[0-9a-f]{64}$`)

// digest reads exactly size bytes from r and returns them with their
// hex-encoded SHA-256.
func digest(r io.Reader, size int64) ([]byte, string, error) {
	if size < 0 {
		return nil, "", fmt.Errorf("negative size %d", size)
	}
	data, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return nil, "", fmt.Errorf("%w: expected %d bytes, got at least %d", registry.ErrSizeMismatch, size, len(data))
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// checkCID rejects ids that could not have been produced by digest, so a
// cid can never escape a store's key space.
func checkCID(cid string) error {
	if !sha256CID.MatchString(cid) {
		return fmt.Errorf("%w: %q", ErrNotFound, cid)
	}
	return nil
}
