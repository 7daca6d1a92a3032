package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode"

	"nifty-go/internal/model"
)

const defaultMimeType = "application/octet-stream"

// UploadRequest describes one upload. Exactly one of ContentID and Content
// must be set: ContentID registers content already in the store, Content
// pushes Size bytes through the content store first.
type UploadRequest struct {
	Folder      string
	DisplayName string
	MimeType    string

	ContentID string

	Content io.Reader
	Size    int64
}

func (s *Service) validateUpload(req *UploadRequest) error {
	if req.Folder == "" {
		return newError(KindInvalidInput, "folder name must not be empty")
	}
	if req.DisplayName == "" {
		return newError(KindInvalidInput, "display name must not be empty")
	}
	if len(req.DisplayName) > s.limits.MaxDisplayNameLength {
		return newError(KindInvalidInput, "display name longer than %d bytes", s.limits.MaxDisplayNameLength)
	}
	if strings.IndexFunc(req.DisplayName, unicode.IsControl) >= 0 {
		return newError(KindInvalidInput, "display name must not contain control characters")
	}

	if req.MimeType == "" {
		req.MimeType = defaultMimeType
	}
	if len(req.MimeType) > s.limits.MaxMimeTypeLength {
		return newError(KindInvalidInput, "mime type longer than %d bytes", s.limits.MaxMimeTypeLength)
	}
	if _, _, err := mime.ParseMediaType(req.MimeType); err != nil {
		return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf("malformed mime type %q", req.MimeType), Err: err}
	}

	switch {
	case req.ContentID != "" && req.Content != nil:
		return newError(KindInvalidInput, "either content or a content id must be given, not both")
	case req.ContentID == "" && req.Content == nil:
		return newError(KindInvalidInput, "content or a content id is required")
	case req.Content != nil && req.Size < 0:
		return newError(KindInvalidInput, "content size must not be negative")
	case req.Content != nil && req.Size > s.limits.MaxUploadSize:
		return newError(KindInvalidInput, "content larger than %d bytes", s.limits.MaxUploadSize)
	case req.ContentID != "" && strings.ContainsFunc(req.ContentID, unicode.IsSpace):
		return newError(KindInvalidInput, "malformed content id")
	}
	return nil
}

// UploadFile registers content in one of the caller's folders and mints a
// fresh token for it. Identical content uploaded twice yields two tokens.
//
// Bytes are stored before the account lock is taken; when registration then
// fails the stored blob is left behind and no record exists.
func (s *Service) UploadFile(ctx context.Context, credential string, req UploadRequest) (*model.FileRecord, error) {
	var record *model.FileRecord
	p := params("folder", req.Folder, "name", req.DisplayName, "cid", req.ContentID)
	err := s.mutate(ctx, credential, OpUploadFile, p, func(account model.Account) error {
		if err := s.validateUpload(&req); err != nil {
			return err
		}

		// Fail fast before pushing bytes to the store.
		folder, err := s.database.FindFolder(ctx, account, req.Folder)
		if err != nil {
			return fmt.Errorf("finding folder: %w", err)
		}
		if folder == nil {
			return newError(KindNotFound, "folder %q not found", req.Folder)
		}

		cid := req.ContentID
		if req.Content != nil {
			cid, err = s.content.Put(ctx, req.Content, req.Size)
			if errors.Is(err, ErrSizeMismatch) {
				return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf("content does not match declared size %d", req.Size), Err: err}
			}
			if err != nil {
				return Unavailable("content store", err)
			}
			s.logger.Debug("content stored", "account", account, "cid", cid, "size", req.Size)
		}

		unlock := s.locks.lock(account)
		defer unlock()

		folder, err = s.database.FindFolder(ctx, account, req.Folder)
		if err != nil {
			return fmt.Errorf("finding folder: %w", err)
		}
		if folder == nil {
			return newError(KindNotFound, "folder %q not found", req.Folder)
		}

		token, err := s.tokens.Allocate(ctx)
		if err != nil {
			return fmt.Errorf("allocating token: %w", err)
		}

		r := &model.FileRecord{
			Token:       token,
			Owner:       account,
			Folder:      req.Folder,
			DisplayName: req.DisplayName,
			MimeType:    req.MimeType,
			ContentID:   cid,
			CreatedAt:   s.clock.Now(),
		}
		if err := s.database.InsertFile(ctx, r); err != nil {
			return fmt.Errorf("inserting file: %w", err)
		}
		record = r
		s.logger.Info("file minted", "account", account, "token", token, "folder", req.Folder, "cid", cid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// MoveFile moves one of the caller's files into another of the caller's folders.
func (s *Service) MoveFile(ctx context.Context, credential string, token model.TokenID, folderName string) (*model.FileRecord, error) {
	var record *model.FileRecord
	err := s.mutate(ctx, credential, OpMoveFile, params("token", token, "folder", folderName), func(account model.Account) error {
		if folderName == "" {
			return newError(KindInvalidInput, "folder name must not be empty")
		}

		unlock := s.locks.lock(account)
		defer unlock()

		r, err := s.database.FindFile(ctx, token)
		if err != nil {
			return fmt.Errorf("finding file: %w", err)
		}
		if r == nil || r.Owner != account {
			return newError(KindNotFound, "token %s not found", token)
		}

		folder, err := s.database.FindFolder(ctx, account, folderName)
		if err != nil {
			return fmt.Errorf("finding folder: %w", err)
		}
		if folder == nil {
			return newError(KindNotFound, "folder %q not found", folderName)
		}

		if r.Folder != folderName {
			if err := s.database.MoveFile(ctx, token, account, folderName); err != nil {
				return fmt.Errorf("moving file: %w", err)
			}
			s.logger.Info("file moved", "account", account, "token", token, "from", r.Folder, "to", folderName)
		}
		r.Folder = folderName
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetFile returns the record for token. Any authenticated caller may read it.
func (s *Service) GetFile(ctx context.Context, credential string, token model.TokenID) (*model.FileRecord, error) {
	var record *model.FileRecord
	err := s.query(ctx, credential, OpGetFile, func(model.Account) error {
		var err error
		record, err = s.findFile(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetUserFiles lists every record the caller owns, unfiled ones included.
func (s *Service) GetUserFiles(ctx context.Context, credential string) ([]*model.FileRecord, error) {
	var records []*model.FileRecord
	err := s.query(ctx, credential, OpGetUserFiles, func(account model.Account) error {
		var err error
		records, err = s.database.ListFilesByOwner(ctx, account)
		if err != nil {
			return fmt.Errorf("listing files: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadContent writes the content behind token to w.
func (s *Service) ReadContent(ctx context.Context, credential string, token model.TokenID, w io.Writer) (*model.FileRecord, error) {
	var record *model.FileRecord
	err := s.query(ctx, credential, OpReadContent, func(model.Account) error {
		r, err := s.findFile(ctx, token)
		if err != nil {
			return err
		}
		if err := s.content.Get(ctx, r.ContentID, w); err != nil {
			return Unavailable("content store", err)
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) findFile(ctx context.Context, token model.TokenID) (*model.FileRecord, error) {
	r, err := s.database.FindFile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if r == nil {
		return nil, newError(KindNotFound, "token %s not found", token)
	}
	return r, nil
}
