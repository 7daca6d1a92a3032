package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"nifty-go/internal/database/migrations"
	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

// SQLiteDatabase implements registry.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path. The schema is not touched;
// call Migrate or check with CheckMigrations.
// path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// connectionParams are applied by the driver to every connection it opens.
// SQLite leaves foreign keys off by default.
const connectionParams = "_foreign_keys=on&_busy_timeout=5000"

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+connectionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection: SQLite serializes writers anyway, and every
	// connection to ":memory:" would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// mapConstraint translates SQLite constraint failures into registry errors.
func mapConstraint(err error, what string) error {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return registry.Conflictf(err, "%s was created concurrently", what)
	case sqlite3.ErrConstraintForeignKey:
		return registry.NotFoundf("folder for %s not found", what)
	}
	return err
}

// Folder operations

func (s *SQLiteDatabase) CreateFolder(ctx context.Context, folder *model.Folder) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO folders (owner, name, created_at) VALUES (?, ?, ?)",
		string(folder.Owner), folder.Name, folder.CreatedAt)
	if err != nil {
		return mapConstraint(err, fmt.Sprintf("folder %q", folder.Name))
	}
	return nil
}

func (s *SQLiteDatabase) FindFolder(ctx context.Context, owner model.Account, name string) (*model.Folder, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT owner, name, created_at FROM folders WHERE owner = ? AND name = ?",
		string(owner), name)
	f, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) ListFolders(ctx context.Context, owner model.Account) ([]*model.Folder, error) {
	return listFolders(ctx, s.db, owner)
}

func (s *SQLiteDatabase) RenameFolder(ctx context.Context, owner model.Account, oldName, newName string) error {
	// ON UPDATE CASCADE repoints files in the same statement.
	res, err := s.db.ExecContext(ctx,
		"UPDATE folders SET name = ? WHERE owner = ? AND name = ?",
		newName, string(owner), oldName)
	if err != nil {
		return mapConstraint(err, fmt.Sprintf("folder %q", newName))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renaming folder: %w", err)
	}
	if n == 0 {
		return registry.NotFoundf("folder %q not found", oldName)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteFolder(ctx context.Context, owner model.Account, name string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var files int64
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE owner = ? AND folder = ?",
		string(owner), name).Scan(&files)
	if err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM folders WHERE owner = ? AND name = ?",
		string(owner), name)
	if err != nil {
		return 0, fmt.Errorf("deleting folder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting folder: %w", err)
	}
	if n == 0 {
		return 0, registry.NotFoundf("folder %q not found", name)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return files, nil
}

// File operations

func (s *SQLiteDatabase) InsertFile(ctx context.Context, file *model.FileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (token, owner, folder, display_name, mime_type, content_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(file.Token), string(file.Owner), nullFolder(file.Folder),
		file.DisplayName, file.MimeType, file.ContentID, file.CreatedAt)
	if err != nil {
		return mapConstraint(err, fmt.Sprintf("token %s", file.Token))
	}

	if err := insertTransfer(ctx, tx, file.Token, "", file.Owner, file.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindFile(ctx context.Context, token model.TokenID) (*model.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, selectFiles+" WHERE token = ?", int64(token))
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) ListFilesByOwner(ctx context.Context, owner model.Account) ([]*model.FileRecord, error) {
	return listFiles(ctx, s.db, owner)
}

func (s *SQLiteDatabase) ListNamespace(ctx context.Context, owner model.Account) ([]*model.Folder, []*model.FileRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	folders, err := listFolders(ctx, tx, owner)
	if err != nil {
		return nil, nil, err
	}
	files, err := listFiles(ctx, tx, owner)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing transaction: %w", err)
	}
	return folders, files, nil
}

func (s *SQLiteDatabase) MoveFile(ctx context.Context, token model.TokenID, owner model.Account, folder string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE files SET folder = ? WHERE token = ? AND owner = ?",
		nullFolder(folder), int64(token), string(owner))
	if err != nil {
		return mapConstraint(err, fmt.Sprintf("token %s", token))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("moving file: %w", err)
	}
	if n == 0 {
		return registry.NotFoundf("token %s not found", token)
	}
	return nil
}

// Ownership operations

func (s *SQLiteDatabase) TransferFile(ctx context.Context, token model.TokenID, from, to model.Account, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE files SET owner = ?, folder = NULL WHERE token = ? AND owner = ?",
		string(to), int64(token), string(from))
	if err != nil {
		return fmt.Errorf("transferring file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transferring file: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM files WHERE token = ?", int64(token)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return registry.NotFoundf("token %s not found", token)
		}
		if err != nil {
			return fmt.Errorf("checking file: %w", err)
		}
		return &registry.Error{Kind: registry.KindUnauthorized, Message: fmt.Sprintf("not the owner of token %s", token)}
	}

	if err := insertTransfer(ctx, tx, token, from, to, at); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListTransfers(ctx context.Context, token model.TokenID) ([]*model.OwnershipEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, from_owner, to_owner, transferred_at
		FROM ownership_transfers WHERE token = ? ORDER BY id`, int64(token))
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var result []*model.OwnershipEntry
	for rows.Next() {
		var (
			e        model.OwnershipEntry
			tok      int64
			from, to string
		)
		if err := rows.Scan(&tok, &from, &to, &e.TransferredAt); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		e.Token = model.TokenID(tok)
		e.From = model.Account(from)
		e.To = model.Account(to)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	return result, nil
}

func insertTransfer(ctx context.Context, tx *sql.Tx, token model.TokenID, from, to model.Account, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO ownership_transfers (token, from_owner, to_owner, transferred_at) VALUES (?, ?, ?, ?)",
		int64(token), string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}
	return nil
}

// ReserveTokens advances the sequence in one statement, so concurrent
// reservations from other processes never overlap.
func (s *SQLiteDatabase) ReserveTokens(ctx context.Context, n uint64) (model.TokenID, error) {
	if n == 0 {
		return 0, fmt.Errorf("reserving tokens: block size must be positive")
	}
	var end int64
	err := s.db.QueryRowContext(ctx,
		"UPDATE token_sequence SET next_token = next_token + ? WHERE id = 1 RETURNING next_token",
		int64(n)).Scan(&end)
	if err != nil {
		return 0, fmt.Errorf("reserving tokens: %w", err)
	}
	return model.TokenID(end - int64(n)), nil
}

// Operation journal

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, op *model.Operation) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO operations (account, operation, parameters, status, started_at) VALUES (?, ?, ?, ?, ?)",
		string(op.Account), op.Operation, op.Parameters, op.Status, op.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?",
		status, finishedAt, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(ctx context.Context, account model.Account, limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, operation, parameters, status, started_at, finished_at
		FROM operations WHERE account = ? ORDER BY id DESC LIMIT ?`,
		string(account), limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			acct     string
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &acct, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.Account = model.Account(acct)
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return result, nil
}

// Ping verifies the connection is alive.
func (s *SQLiteDatabase) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies all pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Row helpers

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

const selectFiles = `SELECT token, owner, folder, display_name, mime_type, content_id, created_at FROM files`

func nullFolder(folder string) sql.NullString {
	return sql.NullString{String: folder, Valid: folder != model.Unfiled}
}

func scanFolder(row scanner) (*model.Folder, error) {
	var (
		f     model.Folder
		owner string
	)
	if err := row.Scan(&owner, &f.Name, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Owner = model.Account(owner)
	return &f, nil
}

func scanFile(row scanner) (*model.FileRecord, error) {
	var (
		f      model.FileRecord
		token  int64
		owner  string
		folder sql.NullString
	)
	if err := row.Scan(&token, &owner, &folder, &f.DisplayName, &f.MimeType, &f.ContentID, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Token = model.TokenID(token)
	f.Owner = model.Account(owner)
	f.Folder = folder.String
	return &f, nil
}

func listFolders(ctx context.Context, q queryer, owner model.Account) ([]*model.Folder, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT owner, name, created_at FROM folders WHERE owner = ? ORDER BY name",
		string(owner))
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	defer rows.Close()

	var result []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning folder: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return result, nil
}

func listFiles(ctx context.Context, q queryer, owner model.Account) ([]*model.FileRecord, error) {
	rows, err := q.QueryContext(ctx, selectFiles+" WHERE owner = ? ORDER BY token", string(owner))
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return result, nil
}

// Compile-time check that SQLiteDatabase implements registry.Database.
var _ registry.Database = (*SQLiteDatabase)(nil)
