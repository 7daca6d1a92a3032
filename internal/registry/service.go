package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nifty-go/internal/model"
)

// Operation names, as recorded in the journal and in metrics.
const (
	OpCreateFolder   = "create_folder"
	OpEditFolder     = "edit_folder"
	OpDeleteFolder   = "delete_folder"
	OpGetUserFolders = "get_user_folders"
	OpUploadFile     = "upload_file"
	OpGetUserFiles   = "get_user_files"
	OpGetFile        = "get_file"
	OpMoveFile       = "move_file"
	OpReadContent    = "read_content"
	OpTransferToken  = "transfer_nft"
	OpTokenHistory   = "token_history"
	OpGetHistory     = "history"
	OpGetNamespace   = "get_namespace"
)

const statusSuccess = "success"

// Limits bounds user-supplied values.
type Limits struct {
	MaxFolderNameLength  int
	MaxDisplayNameLength int
	MaxMimeTypeLength    int
	MaxUploadSize        int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxFolderNameLength:  64,
		MaxDisplayNameLength: 255,
		MaxMimeTypeLength:    127,
		MaxUploadSize:        32 << 20,
	}
}

// Service is the registry's caller-facing surface. Every method authenticates
// the credential first; mutations for one account are serialized, mutations
// for different accounts run in parallel.
type Service struct {
	database Database
	content  ContentStore
	identity IdentityProvider
	tokens   TokenAllocator
	limits   Limits
	logger   Logger
	clock    Clock
	metrics  Metrics
	locks    *accountLocks
}

// NewService creates a Service with the provided dependencies.
func NewService(database Database, content ContentStore, identity IdentityProvider, tokens TokenAllocator, limits Limits, logger Logger, clock Clock, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{
		database: database,
		content:  content,
		identity: identity,
		tokens:   tokens,
		limits:   limits,
		logger:   logger,
		clock:    clock,
		metrics:  metrics,
		locks:    newAccountLocks(),
	}
}

// Limits returns the limits the service enforces.
func (s *Service) Limits() Limits { return s.limits }

// ContentURL returns an HTTP URL for cid when the content store exposes one.
func (s *Service) ContentURL(cid string) string {
	if r, ok := s.content.(URLResolver); ok {
		return r.URL(cid)
	}
	return ""
}

// Authenticate resolves credential to an account without running any
// operation. Transports use it to reject callers before reading a request.
func (s *Service) Authenticate(ctx context.Context, credential string) (model.Account, error) {
	account, err := s.authenticate(ctx, credential)
	if err != nil {
		return "", s.translate("authenticate", err)
	}
	return account, nil
}

func (s *Service) authenticate(ctx context.Context, credential string) (model.Account, error) {
	if credential == "" {
		return "", &Error{Kind: KindUnauthorized, Message: "missing credential"}
	}
	account, err := s.identity.Authenticate(ctx, credential)
	if err != nil {
		switch KindOf(err) {
		case KindDependencyUnavailable:
			return "", err
		default:
			s.logger.Debug("authentication failed", "error", err)
			return "", &Error{Kind: KindUnauthorized, Message: "invalid credential", Err: err}
		}
	}
	if !ValidAccount(account) {
		return "", &Error{Kind: KindUnauthorized, Message: "invalid account"}
	}
	return account, nil
}

// query runs a read-only operation.
func (s *Service) query(ctx context.Context, credential, operation string, fn func(model.Account) error) error {
	start := time.Now()
	account, err := s.authenticate(ctx, credential)
	if err == nil {
		err = fn(account)
	}
	err = s.translate(operation, err)
	s.metrics.ObserveOperation(operation, resultOf(err), time.Since(start))
	return err
}

// mutate runs a mutating operation and records it in the operation journal.
// Journal failures are logged and never fail the operation itself.
func (s *Service) mutate(ctx context.Context, credential, operation, params string, fn func(model.Account) error) error {
	start := time.Now()
	account, err := s.authenticate(ctx, credential)
	if err != nil {
		err = s.translate(operation, err)
		s.metrics.ObserveOperation(operation, resultOf(err), time.Since(start))
		return err
	}

	opID, jerr := s.database.CreateOperation(ctx, &model.Operation{
		Account:    account,
		Operation:  operation,
		Parameters: params,
		Status:     "running",
		StartedAt:  s.clock.Now(),
	})
	if jerr != nil {
		s.logger.Warn("recording operation", "operation", operation, "error", jerr)
	}

	err = s.translate(operation, fn(account))

	if jerr == nil {
		// The caller's context may be done by now; the journal entry still gets closed.
		if ferr := s.database.FinishOperation(context.WithoutCancel(ctx), opID, resultOf(err), s.clock.Now()); ferr != nil {
			s.logger.Warn("finishing operation", "operation", operation, "id", opID, "error", ferr)
		}
	}
	s.metrics.ObserveOperation(operation, resultOf(err), time.Since(start))
	return err
}

// translate maps any error onto the taxonomy. Errors outside it become
// Internal with a generic message; the detail is only logged.
func (s *Service) translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindDependencyUnavailable || e.Kind == KindInternal {
			s.logger.Warn("operation failed", "operation", operation, "kind", e.Kind.String(), "error", err)
		}
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindDependencyUnavailable, Message: "request cancelled", Err: err}
	}
	s.logger.Error("operation failed", "operation", operation, "error", err)
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

func resultOf(err error) string {
	if err == nil {
		return statusSuccess
	}
	return KindOf(err).String()
}

// params renders journal parameters as space separated key=value pairs.
func params(kv ...any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%q", kv[i], fmt.Sprint(kv[i+1]))
	}
	return b.String()
}
