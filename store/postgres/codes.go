package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/alebarre/credauth/otp"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// CodeStore implements otp.Store. Writers for one (address, purpose) pair are
// serialized with a transaction-scoped advisory lock.
type CodeStore struct {
	db DB
}

var _ otp.Store = (*CodeStore)(nil)

// NewCodeStore returns a store over db.
func NewCodeStore(db DB) *CodeStore {
	return &CodeStore{db: db}
}

const lockCodeSQL = `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`

const latestCodeSQL = `
	SELECT id, address, purpose, code_hash, attempts, used, created_at, expires_at
	FROM one_time_codes
	WHERE address = $1 AND purpose = $2 AND NOT used
	ORDER BY created_at DESC, id DESC
	LIMIT 1`

func scanCode(row pgx.Row) (*otp.Record, error) {
	var (
		r       otp.Record
		purpose string
	)
	if err := row.Scan(&r.ID, &r.Address, &purpose, &r.CodeHash, &r.Attempts, &r.Used, &r.CreatedAt, &r.ExpiresAt); err != nil {
		return nil, err
	}
	r.Purpose = otp.Purpose(purpose)
	return &r, nil
}

// Replace retires any unused record for the pair and inserts rec.
func (s *CodeStore) Replace(ctx context.Context, rec *otp.Record) error {
	return inTx(ctx, s.db, "CODE_REPLACE_FAILED", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockCodeSQL, rec.Address, string(rec.Purpose)); err != nil {
			return oops.Code("CODE_REPLACE_FAILED").With("purpose", string(rec.Purpose)).With("operation", "lock").Wrap(err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE one_time_codes SET used = true WHERE address = $1 AND purpose = $2 AND NOT used`,
			rec.Address, string(rec.Purpose)); err != nil {
			return oops.Code("CODE_REPLACE_FAILED").With("purpose", string(rec.Purpose)).With("operation", "retire").Wrap(err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO one_time_codes (id, address, purpose, code_hash, attempts, used, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, rec.Address, string(rec.Purpose), rec.CodeHash, rec.Attempts, rec.Used, rec.CreatedAt, rec.ExpiresAt); err != nil {
			return oops.Code("CODE_REPLACE_FAILED").With("purpose", string(rec.Purpose)).With("operation", "insert").Wrap(err)
		}
		return nil
	})
}

// Latest returns the newest unused record.
func (s *CodeStore) Latest(ctx context.Context, address string, purpose otp.Purpose) (*otp.Record, error) {
	r, err := scanCode(s.db.QueryRow(ctx, latestCodeSQL, address, string(purpose)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("CODE_GET_FAILED").With("purpose", string(purpose)).Wrap(err)
	}
	return r, nil
}

// Update locks the newest unused record, applies fn and writes the outcome
// back in the same transaction. fn's error is returned after the commit.
func (s *CodeStore) Update(ctx context.Context, address string, purpose otp.Purpose, fn func(*otp.Record) error) error {
	var fnErr error
	err := inTx(ctx, s.db, "CODE_UPDATE_FAILED", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockCodeSQL, address, string(purpose)); err != nil {
			return oops.Code("CODE_UPDATE_FAILED").With("purpose", string(purpose)).With("operation", "lock").Wrap(err)
		}
		r, err := scanCode(tx.QueryRow(ctx, latestCodeSQL+` FOR UPDATE`, address, string(purpose)))
		if errors.Is(err, pgx.ErrNoRows) {
			return otp.ErrNotFound
		}
		if err != nil {
			return oops.Code("CODE_UPDATE_FAILED").With("purpose", string(purpose)).Wrap(err)
		}

		fnErr = fn(r)
		if _, err := tx.Exec(ctx,
			`UPDATE one_time_codes SET used = $2, attempts = $3 WHERE id = $1`,
			r.ID, r.Used, r.Attempts); err != nil {
			return oops.Code("CODE_UPDATE_FAILED").With("purpose", string(purpose)).With("operation", "write").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return fnErr
}

// DeleteExpired removes records that expired before the cutoff.
func (s *CodeStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM one_time_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("CODE_PURGE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
