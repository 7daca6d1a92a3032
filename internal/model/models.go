package model

import (
	"strconv"
	"time"
)

// Account is an opaque caller identity issued by the identity provider.
// The registry never creates or destroys accounts, it only references them.
type Account string

// TokenID identifies one minted file record. Allocated monotonically and never reused.
type TokenID uint64

func (t TokenID) String() string { return strconv.FormatUint(uint64(t), 10) }

// ParseTokenID parses the decimal form produced by TokenID.String.
func ParseTokenID(s string) (TokenID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TokenID(n), nil
}

// Unfiled is the folder value of a record that belongs to no folder,
// e.g. right after an ownership transfer.
const Unfiled = ""

// Folder is a named grouping of file records inside one account's namespace.
type Folder struct {
	Owner     Account   `json:"owner"`
	Name      string    `json:"name"` // unique per owner, case-sensitive
	CreatedAt time.Time `json:"created_at"`
}

// FileRecord binds a token to uploaded content.
// Token and ContentID never change after creation.
type FileRecord struct {
	Token       TokenID   `json:"token"`
	Owner       Account   `json:"owner"`
	Folder      string    `json:"folder"` // Unfiled when detached
	DisplayName string    `json:"display_name"`
	MimeType    string    `json:"mime_type"`
	ContentID   string    `json:"content_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsUnfiled reports whether the record has no folder.
func (f *FileRecord) IsUnfiled() bool { return f.Folder == Unfiled }

// OwnershipEntry is one step in a token's provenance. From is empty for the mint.
type OwnershipEntry struct {
	Token         TokenID   `json:"token"`
	From          Account   `json:"from,omitempty"`
	To            Account   `json:"to"`
	TransferredAt time.Time `json:"transferred_at"`
}

// Operation is a journal entry for one mutating call.
type Operation struct {
	ID         int64      `json:"id"`
	Account    Account    `json:"account"`
	Operation  string     `json:"operation"`
	Parameters string     `json:"parameters"`
	Status     string     `json:"status"` // "success" or the error kind
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
