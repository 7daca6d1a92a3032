package registry

import (
	"context"
	"regexp"

	"nifty-go/internal/model"
)

// IdentityProvider turns a caller-supplied credential into an account.
// Implementations return ErrUnauthorized (or an *Error of that kind) for
// missing or invalid credentials.
type IdentityProvider interface {
	Authenticate(ctx context.Context, credential string) (model.Account, error)
}

const maxAccountLength = 63

var accountPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidAccount reports whether a is a well-formed account identifier:
// lowercase alphanumeric groups separated by single dashes.
func ValidAccount(a model.Account) bool {
	return len(a) > 0 && len(a) <= maxAccountLength && accountPattern.MatchString(string(a))
}
