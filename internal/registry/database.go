package registry

import (
	"context"
	"time"

	"nifty-go/internal/model"
)

// Database provides the authoritative storage for folders, file records,
// ownership history, the token sequence and the operation journal.
// Every mutating method runs in its own transaction. Lookups that find
// nothing return (nil, nil).
type Database interface {
	// Folder operations

	// CreateFolder inserts a folder. A unique violation is reported as Conflict.
	CreateFolder(ctx context.Context, folder *model.Folder) error

	// FindFolder returns the folder with an exact (case-sensitive) name match.
	FindFolder(ctx context.Context, owner model.Account, name string) (*model.Folder, error)

	// ListFolders returns every folder owned by owner, ordered by name.
	ListFolders(ctx context.Context, owner model.Account) ([]*model.Folder, error)

	// RenameFolder renames a folder and repoints every file that references it
	// in the same transaction. Returns NotFound if oldName does not exist.
	RenameFolder(ctx context.Context, owner model.Account, oldName, newName string) error

	// DeleteFolder deletes a folder together with every file it contains.
	// Returns the number of file records removed, or NotFound.
	DeleteFolder(ctx context.Context, owner model.Account, name string) (int64, error)

	// File operations

	// InsertFile stores a freshly minted record and its initial ownership entry.
	// Returns NotFound if the folder does not exist for the owner.
	InsertFile(ctx context.Context, file *model.FileRecord) error

	// FindFile returns a record by token.
	FindFile(ctx context.Context, token model.TokenID) (*model.FileRecord, error)

	// ListFilesByOwner returns every record owned by owner, ordered by token.
	ListFilesByOwner(ctx context.Context, owner model.Account) ([]*model.FileRecord, error)

	// ListNamespace returns folders and files of owner read in one transaction.
	ListNamespace(ctx context.Context, owner model.Account) ([]*model.Folder, []*model.FileRecord, error)

	// MoveFile sets the folder of a record owned by owner.
	// Returns NotFound when the record is missing, owned by someone else,
	// or the target folder does not exist.
	MoveFile(ctx context.Context, token model.TokenID, owner model.Account, folder string) error

	// Ownership operations

	// TransferFile moves a record from one owner to another, detaching it to
	// the unfiled state and appending a provenance entry. The update only
	// applies while from is still the owner: otherwise NotFound or Unauthorized.
	TransferFile(ctx context.Context, token model.TokenID, from, to model.Account, at time.Time) error

	// ListTransfers returns the provenance of a token, oldest first.
	ListTransfers(ctx context.Context, token model.TokenID) ([]*model.OwnershipEntry, error)

	// ReserveTokens advances the persisted token sequence by n and returns
	// the first id of the reserved block.
	ReserveTokens(ctx context.Context, n uint64) (model.TokenID, error)

	// Operation journal

	CreateOperation(ctx context.Context, op *model.Operation) (int64, error)
	FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error
	ListOperations(ctx context.Context, account model.Account, limit int) ([]*model.Operation, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	// Close closes the database connection.
	Close() error
}
