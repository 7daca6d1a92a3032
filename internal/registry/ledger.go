package registry

import (
	"context"
	"fmt"

	"nifty-go/internal/model"
)

// TransferToken hands a token over to newOwner. The record leaves the
// previous owner's folder and arrives unfiled in the new owner's namespace.
//
// Both accounts are locked for the duration, so a concurrent transfer of
// the same token observes the new owner and fails with Unauthorized.
func (s *Service) TransferToken(ctx context.Context, credential string, token model.TokenID, newOwner model.Account) (*model.FileRecord, error) {
	var record *model.FileRecord
	err := s.mutate(ctx, credential, OpTransferToken, params("token", token, "to", newOwner), func(requester model.Account) error {
		if !ValidAccount(newOwner) {
			return newError(KindInvalidInput, "malformed account %q", newOwner)
		}

		unlock := s.locks.lock(requester, newOwner)
		defer unlock()

		r, err := s.database.FindFile(ctx, token)
		if err != nil {
			return fmt.Errorf("finding file: %w", err)
		}
		if r == nil {
			return newError(KindNotFound, "token %s not found", token)
		}
		if r.Owner != requester {
			return newError(KindUnauthorized, "not the owner of token %s", token)
		}
		if newOwner == r.Owner {
			return newError(KindInvalidInput, "token %s is already owned by %s", token, newOwner)
		}

		if err := s.database.TransferFile(ctx, token, requester, newOwner, s.clock.Now()); err != nil {
			return fmt.Errorf("transferring token: %w", err)
		}
		r.Owner = newOwner
		r.Folder = model.Unfiled
		record = r
		s.logger.Info("token transferred", "token", token, "from", requester, "to", newOwner)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// TokenHistory returns the ownership provenance of a token, oldest first.
// The first entry is the mint and has no From.
func (s *Service) TokenHistory(ctx context.Context, credential string, token model.TokenID) ([]*model.OwnershipEntry, error) {
	var entries []*model.OwnershipEntry
	err := s.query(ctx, credential, OpTokenHistory, func(model.Account) error {
		var err error
		entries, err = s.database.ListTransfers(ctx, token)
		if err != nil {
			return fmt.Errorf("listing transfers: %w", err)
		}
		if len(entries) == 0 {
			return newError(KindNotFound, "token %s not found", token)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetHistory returns the caller's most recent operations, newest first.
func (s *Service) GetHistory(ctx context.Context, credential string, limit int) ([]*model.Operation, error) {
	var ops []*model.Operation
	err := s.query(ctx, credential, OpGetHistory, func(account model.Account) error {
		if limit <= 0 {
			return newError(KindInvalidInput, "limit must be positive")
		}
		var err error
		ops, err = s.database.ListOperations(ctx, account, limit)
		if err != nil {
			return fmt.Errorf("listing operations: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}
