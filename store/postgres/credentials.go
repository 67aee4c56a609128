package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

const credentialColumns = `id::text, handle, password_hash, display_name, email, phone, roles, enabled, created_at, updated_at`

// lockAdminsSQL serializes every change to the set of admins.
const lockAdminsSQL = `SELECT pg_advisory_xact_lock(hashtext('credauth:admins'))`

const pruneHistorySQL = `
	DELETE FROM password_history
	WHERE principal = $1 AND id NOT IN (
		SELECT id FROM password_history
		WHERE principal = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	)`

// CredentialStore implements credential.Store and credential.PasswordReplacer.
type CredentialStore struct {
	db DB
}

var (
	_ credential.Store            = (*CredentialStore)(nil)
	_ credential.PasswordReplacer = (*CredentialStore)(nil)
)

// NewCredentialStore returns a store over db.
func NewCredentialStore(db DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func scanCredential(row pgx.Row) (*credential.Credential, error) {
	var (
		c     credential.Credential
		roles []string
	)
	if err := row.Scan(&c.ID, &c.Handle, &c.PasswordHash, &c.DisplayName, &c.Email, &c.Phone,
		&roles, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Roles = make([]credential.Role, 0, len(roles))
	for _, r := range roles {
		c.Roles = append(c.Roles, credential.Role(r))
	}
	return &c, nil
}

// FindByHandle loads one credential.
func (s *CredentialStore) FindByHandle(ctx context.Context, handle string) (*credential.Credential, error) {
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM credentials WHERE handle = $1`, credentialColumns), handle)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").With("handle", handle).Wrap(err)
	}
	return c, nil
}

// Create inserts c. A taken handle yields credential.ErrExists.
func (s *CredentialStore) Create(ctx context.Context, c *credential.Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return insertCredential(ctx, s.db, c)
}

func insertCredential(ctx context.Context, db execer, c *credential.Credential) error {
	_, err := db.Exec(ctx, `
		INSERT INTO credentials (id, handle, password_hash, display_name, email, phone, roles, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Handle, c.PasswordHash, c.DisplayName, c.Email, c.Phone,
		c.RoleLabels(), c.Enabled, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return credential.ErrExists
	}
	if err != nil {
		return oops.Code("CREDENTIAL_CREATE_FAILED").With("handle", c.Handle).Wrap(err)
	}
	return nil
}

// Save overwrites the mutable columns of an existing credential.
func (s *CredentialStore) Save(ctx context.Context, c *credential.Credential) error {
	c.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE credentials
		SET password_hash = $2, display_name = $3, email = $4, phone = $5, roles = $6, enabled = $7, updated_at = $8
		WHERE handle = $1`,
		c.Handle, c.PasswordHash, c.DisplayName, c.Email, c.Phone, c.RoleLabels(), c.Enabled, c.UpdatedAt)
	if err != nil {
		return oops.Code("CREDENTIAL_SAVE_FAILED").With("handle", c.Handle).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotFound
	}
	return nil
}

// Delete removes the credential and its password history.
func (s *CredentialStore) Delete(ctx context.Context, handle string) error {
	return inTx(ctx, s.db, "CREDENTIAL_DELETE_FAILED", func(tx pgx.Tx) error {
		return deleteCredential(ctx, tx, handle)
	})
}

func deleteCredential(ctx context.Context, tx pgx.Tx, handle string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM credentials WHERE handle = $1`, handle)
	if err != nil {
		return oops.Code("CREDENTIAL_DELETE_FAILED").With("handle", handle).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM password_history WHERE principal = $1`, handle); err != nil {
		return oops.Code("CREDENTIAL_DELETE_FAILED").With("handle", handle).With("operation", "history").Wrap(err)
	}
	return nil
}

// CountWithRole counts credentials holding role.
func (s *CredentialStore) CountWithRole(ctx context.Context, role credential.Role) (int, error) {
	n, err := countWithRole(ctx, s.db, role)
	if err != nil {
		return 0, oops.Code("CREDENTIAL_COUNT_FAILED").With("role", string(role)).Wrap(err)
	}
	return n, nil
}

func countWithRole(ctx context.Context, db querier, role credential.Role) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT count(*) FROM credentials WHERE $1 = ANY(roles)`, string(role)).Scan(&n)
	return n, err
}

// SetEnabled writes only the enabled flag.
func (s *CredentialStore) SetEnabled(ctx context.Context, handle string, enabled bool, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE credentials SET enabled = $2, updated_at = $3 WHERE handle = $1 AND enabled <> $2`,
		handle, enabled, at)
	if err != nil {
		return false, oops.Code("CREDENTIAL_SAVE_FAILED").With("handle", handle).With("operation", "enabled").Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credentials WHERE handle = $1)`, handle).Scan(&exists)
	if err != nil {
		return false, oops.Code("CREDENTIAL_SAVE_FAILED").With("handle", handle).With("operation", "exists").Wrap(err)
	}
	if !exists {
		return false, credential.ErrNotFound
	}
	return false, nil
}

// SwapPasswordHash installs newHash while the stored hash equals oldHash.
func (s *CredentialStore) SwapPasswordHash(ctx context.Context, handle, oldHash, newHash string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE credentials SET password_hash = $3, updated_at = $4 WHERE handle = $1 AND password_hash = $2`,
		handle, oldHash, newHash, at)
	if err != nil {
		return false, oops.Code("CREDENTIAL_SAVE_FAILED").With("handle", handle).With("operation", "rehash").Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateFirstAdmin inserts c unless an admin exists.
func (s *CredentialStore) CreateFirstAdmin(ctx context.Context, c *credential.Credential) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	var created bool
	err := inTx(ctx, s.db, "ADMIN_SEED_FAILED", func(tx pgx.Tx) error {
		n, err := lockAndCountAdmins(ctx, tx)
		if err != nil {
			return oops.Code("ADMIN_SEED_FAILED").With("handle", c.Handle).Wrap(err)
		}
		if n > 0 {
			return nil
		}
		if err := insertCredential(ctx, tx, c); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// DeleteUnlessLastAdmin removes handle and its history unless it is the only
// admin.
func (s *CredentialStore) DeleteUnlessLastAdmin(ctx context.Context, handle string) error {
	return inTx(ctx, s.db, "CREDENTIAL_DELETE_FAILED", func(tx pgx.Tx) error {
		if err := guardAdmin(ctx, tx, handle, nil); err != nil {
			return err
		}
		return deleteCredential(ctx, tx, handle)
	})
}

// ReplaceRolesUnlessLastAdmin overwrites the roles of handle unless that
// drops the only admin.
func (s *CredentialStore) ReplaceRolesUnlessLastAdmin(ctx context.Context, handle string, roles []credential.Role, at time.Time) (*credential.Credential, error) {
	labels := make([]string, 0, len(roles))
	for _, r := range roles {
		labels = append(labels, string(r))
	}

	var out *credential.Credential
	err := inTx(ctx, s.db, "CREDENTIAL_ROLES_FAILED", func(tx pgx.Tx) error {
		if err := guardAdmin(ctx, tx, handle, roles); err != nil {
			return err
		}
		c, err := scanCredential(tx.QueryRow(ctx, fmt.Sprintf(`
			UPDATE credentials SET roles = $2, updated_at = $3
			WHERE handle = $1
			RETURNING %s`, credentialColumns), handle, labels, at))
		if err != nil {
			return oops.Code("CREDENTIAL_ROLES_FAILED").With("handle", handle).Wrap(err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockAndCountAdmins takes the transaction-scoped admin lock and counts the
// admins. Every change to the admin set goes through it.
func lockAndCountAdmins(ctx context.Context, tx pgx.Tx) (int, error) {
	if _, err := tx.Exec(ctx, lockAdminsSQL); err != nil {
		return 0, err
	}
	return countWithRole(ctx, tx, credential.RoleAdmin)
}

// guardAdmin locks the admin set and the row of handle, then fails with
// credential.ErrLastAdmin when handle is the only admin and next drops the
// role. A nil next means the row is being deleted.
func guardAdmin(ctx context.Context, tx pgx.Tx, handle string, next []credential.Role) error {
	if _, err := tx.Exec(ctx, lockAdminsSQL); err != nil {
		return oops.Code("ADMIN_LOCK_FAILED").With("handle", handle).Wrap(err)
	}
	var isAdmin bool
	err := tx.QueryRow(ctx,
		`SELECT $2 = ANY(roles) FROM credentials WHERE handle = $1 FOR UPDATE`,
		handle, string(credential.RoleAdmin)).Scan(&isAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.ErrNotFound
	}
	if err != nil {
		return oops.Code("ADMIN_LOCK_FAILED").With("handle", handle).Wrap(err)
	}
	if !isAdmin || slices.Contains(next, credential.RoleAdmin) {
		return nil
	}
	n, err := countWithRole(ctx, tx, credential.RoleAdmin)
	if err != nil {
		return oops.Code("CREDENTIAL_COUNT_FAILED").With("role", string(credential.RoleAdmin)).Wrap(err)
	}
	if n <= 1 {
		return credential.ErrLastAdmin
	}
	return nil
}

// ReplacePassword moves the current hash into history, prunes history to keep
// entries and installs newHash in one transaction.
func (s *CredentialStore) ReplacePassword(ctx context.Context, handle, newHash string, keep int, at time.Time) error {
	return inTx(ctx, s.db, "PASSWORD_REPLACE_FAILED", func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT password_hash FROM credentials WHERE handle = $1 FOR UPDATE`, handle).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.ErrNotFound
		}
		if err != nil {
			return oops.Code("PASSWORD_REPLACE_FAILED").With("handle", handle).Wrap(err)
		}

		if current != "" {
			if _, err := tx.Exec(ctx,
				`INSERT INTO password_history (id, principal, hash, created_at) VALUES ($1, $2, $3, $4)`,
				ulid.Make().String(), handle, current, at); err != nil {
				return oops.Code("PASSWORD_REPLACE_FAILED").With("handle", handle).With("operation", "history").Wrap(err)
			}
			if _, err := tx.Exec(ctx, pruneHistorySQL, handle, keep); err != nil {
				return oops.Code("PASSWORD_REPLACE_FAILED").With("handle", handle).With("operation", "prune").Wrap(err)
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE credentials SET password_hash = $2, updated_at = $3 WHERE handle = $1`,
			handle, newHash, at); err != nil {
			return oops.Code("PASSWORD_REPLACE_FAILED").With("handle", handle).Wrap(err)
		}
		return nil
	})
}
