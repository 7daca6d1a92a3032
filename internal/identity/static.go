package identity

import (
	"context"
	"strings"

	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

// StaticProvider trusts the credential as the account name. It is meant
// for local single-user setups and tests, where the caller is the operator.
type StaticProvider struct{}

var _ registry.IdentityProvider = StaticProvider{}

func NewStaticProvider() StaticProvider {
	return StaticProvider{}
}

func (StaticProvider) Authenticate(ctx context.Context, credential string) (model.Account, error) {
	account := model.Account(strings.TrimSpace(credential))
	if !registry.ValidAccount(account) {
		return "", registry.ErrUnauthorized
	}
	return account, nil
}
