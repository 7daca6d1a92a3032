package registry

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"nifty-go/internal/model"
)

func (s *Service) validateFolderName(name string) error {
	switch {
	case name == "":
		return newError(KindInvalidInput, "folder name must not be empty")
	case len(name) > s.limits.MaxFolderNameLength:
		return newError(KindInvalidInput, "folder name longer than %d bytes", s.limits.MaxFolderNameLength)
	case !utf8.ValidString(name):
		return newError(KindInvalidInput, "folder name is not valid UTF-8")
	case strings.TrimSpace(name) == "":
		return newError(KindInvalidInput, "folder name must not be blank")
	case strings.ContainsRune(name, '/'):
		return newError(KindInvalidInput, "folder name must not contain '/'")
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return newError(KindInvalidInput, "folder name must not contain control characters")
	}
	return nil
}

// CreateFolder creates an empty folder in the caller's namespace.
func (s *Service) CreateFolder(ctx context.Context, credential, name string) (*model.Folder, error) {
	var folder *model.Folder
	err := s.mutate(ctx, credential, OpCreateFolder, params("name", name), func(account model.Account) error {
		if err := s.validateFolderName(name); err != nil {
			return err
		}

		unlock := s.locks.lock(account)
		defer unlock()

		existing, err := s.database.FindFolder(ctx, account, name)
		if err != nil {
			return fmt.Errorf("checking for existing folder: %w", err)
		}
		if existing != nil {
			return newError(KindAlreadyExists, "folder %q already exists", name)
		}

		f := &model.Folder{Owner: account, Name: name, CreatedAt: s.clock.Now()}
		if err := s.database.CreateFolder(ctx, f); err != nil {
			return fmt.Errorf("creating folder: %w", err)
		}
		folder = f
		s.logger.Info("folder created", "account", account, "folder", name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// EditFolder renames a folder. Files inside it follow the folder.
// Renaming a folder to its current name is a no-op.
func (s *Service) EditFolder(ctx context.Context, credential, oldName, newName string) (*model.Folder, error) {
	var folder *model.Folder
	err := s.mutate(ctx, credential, OpEditFolder, params("old", oldName, "new", newName), func(account model.Account) error {
		if oldName == "" {
			return newError(KindInvalidInput, "folder name must not be empty")
		}
		if err := s.validateFolderName(newName); err != nil {
			return err
		}

		unlock := s.locks.lock(account)
		defer unlock()

		current, err := s.database.FindFolder(ctx, account, oldName)
		if err != nil {
			return fmt.Errorf("finding folder: %w", err)
		}
		if current == nil {
			return newError(KindNotFound, "folder %q not found", oldName)
		}
		if oldName == newName {
			folder = current
			return nil
		}

		taken, err := s.database.FindFolder(ctx, account, newName)
		if err != nil {
			return fmt.Errorf("checking for existing folder: %w", err)
		}
		if taken != nil {
			return newError(KindAlreadyExists, "folder %q already exists", newName)
		}

		if err := s.database.RenameFolder(ctx, account, oldName, newName); err != nil {
			return fmt.Errorf("renaming folder: %w", err)
		}
		current.Name = newName
		folder = current
		s.logger.Info("folder renamed", "account", account, "from", oldName, "to", newName)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// DeleteFolder deletes a folder and every file record inside it.
func (s *Service) DeleteFolder(ctx context.Context, credential, name string) error {
	return s.mutate(ctx, credential, OpDeleteFolder, params("name", name), func(account model.Account) error {
		if name == "" {
			return newError(KindInvalidInput, "folder name must not be empty")
		}

		unlock := s.locks.lock(account)
		defer unlock()

		removed, err := s.database.DeleteFolder(ctx, account, name)
		if err != nil {
			return fmt.Errorf("deleting folder: %w", err)
		}
		s.logger.Info("folder deleted", "account", account, "folder", name, "files", removed)
		return nil
	})
}

// GetUserFolders lists the caller's folders.
func (s *Service) GetUserFolders(ctx context.Context, credential string) ([]*model.Folder, error) {
	var folders []*model.Folder
	err := s.query(ctx, credential, OpGetUserFolders, func(account model.Account) error {
		var err error
		folders, err = s.database.ListFolders(ctx, account)
		if err != nil {
			return fmt.Errorf("listing folders: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// Namespace is a consistent view of one account's folders and files.
type Namespace struct {
	Account model.Account
	Folders []*model.Folder
	Files   []*model.FileRecord
}

// FilesIn returns the files in folder; Unfiled selects detached records.
func (n *Namespace) FilesIn(folder string) []*model.FileRecord {
	var out []*model.FileRecord
	for _, f := range n.Files {
		if f.Folder == folder {
			out = append(out, f)
		}
	}
	return out
}

// GetNamespace returns the caller's folders and files read together.
func (s *Service) GetNamespace(ctx context.Context, credential string) (*Namespace, error) {
	var ns *Namespace
	err := s.query(ctx, credential, OpGetNamespace, func(account model.Account) error {
		folders, files, err := s.database.ListNamespace(ctx, account)
		if err != nil {
			return fmt.Errorf("listing namespace: %w", err)
		}
		ns = &Namespace{Account: account, Folders: folders, Files: files}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ns, nil
}
