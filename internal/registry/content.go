package registry

import (
	"context"
	"errors"
	"io"
)

// ErrSizeMismatch is wrapped by ContentStore.Put when r does not yield
// exactly the declared number of bytes.
var ErrSizeMismatch = errors.New("content size mismatch")

// ContentStore is the content-addressable blob store the registry hands
// uploaded bytes to. The returned content id is opaque and stable.
type ContentStore interface {
	// Put stores size bytes read from r and returns their content id.
	Put(ctx context.Context, r io.Reader, size int64) (string, error)

	// Get writes the content identified by cid to w.
	Get(ctx context.Context, cid string, w io.Writer) error

	// ValidateSetup verifies that the store is reachable and configured.
	ValidateSetup(ctx context.Context) error
}

// URLResolver is implemented by stores whose content is reachable over HTTP.
type URLResolver interface {
	URL(cid string) string
}
