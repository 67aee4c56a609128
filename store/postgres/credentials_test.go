package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var credentialCols = []string{"id", "handle", "password_hash", "display_name", "email", "phone", "roles", "enabled", "created_at", "updated_at"}

func TestCredentialStore_FindByHandle(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantRoles []credential.Role
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id::text, handle, password_hash, .* FROM credentials WHERE handle`).
					WithArgs("ana@example.com").
					WillReturnRows(pgxmock.NewRows(credentialCols).AddRow(
						"7a1e6c1e-0000-4000-8000-000000000001", "ana@example.com", "hash", "Ana", "ana@example.com", "",
						[]string{"ROLE_ADMIN", "ROLE_USER"}, true, now, now))
			},
			wantRoles: []credential.Role{credential.RoleAdmin, credential.RoleUser},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM credentials WHERE handle`).
					WithArgs("ana@example.com").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: credential.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			c, err := NewCredentialStore(mock).FindByHandle(context.Background(), "ana@example.com")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantRoles, c.Roles)
				assert.True(t, c.Enabled)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCredentialStore_FindByHandleWrapsDriverErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM credentials WHERE handle`).
		WithArgs("ana").
		WillReturnError(errors.New("connection refused"))
	_, err = NewCredentialStore(mock).FindByHandle(context.Background(), "ana")
	require.Error(t, err)
	assert.NotErrorIs(t, err, credential.ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCredentialStore_CreateDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(pgxmock.AnyArg(), "ana", "h", "", "", "", []string{"ROLE_USER"}, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	c := &credential.Credential{Handle: "ana", PasswordHash: "h", Roles: []credential.Role{credential.RoleUser}}
	err = NewCredentialStore(mock).Create(context.Background(), c)
	assert.ErrorIs(t, err, credential.ErrExists)
	assert.NotEmpty(t, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_SaveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE credentials`).
		WithArgs("ghost", "", "", "", "", pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = NewCredentialStore(mock).Save(context.Background(), &credential.Credential{Handle: "ghost"})
	assert.ErrorIs(t, err, credential.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_CountWithRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM credentials WHERE .* = ANY\(roles\)`).
		WithArgs("ROLE_ADMIN").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	n, err := NewCredentialStore(mock).CountWithRole(context.Background(), credential.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_ReplacePassword(t *testing.T) {
	at := time.Now().UTC()
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "records old hash then overwrites",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT password_hash FROM credentials WHERE handle = .* FOR UPDATE`).
					WithArgs("ana").
					WillReturnRows(pgxmock.NewRows([]string{"password_hash"}).AddRow("old"))
				mock.ExpectExec(`INSERT INTO password_history`).
					WithArgs(pgxmock.AnyArg(), "ana", "old", at).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`DELETE FROM password_history`).
					WithArgs("ana", 5).
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
				mock.ExpectExec(`UPDATE credentials SET password_hash`).
					WithArgs("ana", "new", at).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "unknown handle rolls back",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT password_hash FROM credentials`).
					WithArgs("ana").
					WillReturnError(pgx.ErrNoRows)
				mock.ExpectRollback()
			},
			wantErr: credential.ErrNotFound,
		},
		{
			name: "history failure rolls back",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT password_hash FROM credentials`).
					WithArgs("ana").
					WillReturnRows(pgxmock.NewRows([]string{"password_hash"}).AddRow("old"))
				mock.ExpectExec(`INSERT INTO password_history`).
					WithArgs(pgxmock.AnyArg(), "ana", "old", at).
					WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			err = NewCredentialStore(mock).ReplacePassword(context.Background(), "ana", "new", 5, at)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.name == "history failure rolls back":
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func expectAdminGuard(mock pgxmock.PgxPoolIface, handle string, isAdmin bool) {
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\('credauth:admins'\)\)`).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT \$2 = ANY\(roles\) FROM credentials WHERE handle = \$1 FOR UPDATE`).
		WithArgs(handle, "ROLE_ADMIN").
		WillReturnRows(pgxmock.NewRows([]string{"is_admin"}).AddRow(isAdmin))
}

func expectAdminCount(mock pgxmock.PgxPoolIface, n int) {
	mock.ExpectQuery(`SELECT count\(\*\) FROM credentials WHERE .* = ANY\(roles\)`).
		WithArgs("ROLE_ADMIN").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(n))
}

func TestCredentialStore_DeleteUnlessLastAdmin(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "refuses the only admin",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				expectAdminGuard(mock, "root", true)
				expectAdminCount(mock, 1)
				mock.ExpectRollback()
			},
			wantErr: credential.ErrLastAdmin,
		},
		{
			name: "deletes one of two admins",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				expectAdminGuard(mock, "root", true)
				expectAdminCount(mock, 2)
				mock.ExpectExec(`DELETE FROM credentials WHERE handle`).
					WithArgs("root").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
				mock.ExpectExec(`DELETE FROM password_history WHERE principal`).
					WithArgs("root").
					WillReturnResult(pgxmock.NewResult("DELETE", 3))
				mock.ExpectCommit()
			},
		},
		{
			name: "non-admin skips the count",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				expectAdminGuard(mock, "root", false)
				mock.ExpectExec(`DELETE FROM credentials WHERE handle`).
					WithArgs("root").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
				mock.ExpectExec(`DELETE FROM password_history WHERE principal`).
					WithArgs("root").
					WillReturnResult(pgxmock.NewResult("DELETE", 0))
				mock.ExpectCommit()
			},
		},
		{
			name: "unknown handle",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`pg_advisory_xact_lock`).
					WillReturnResult(pgxmock.NewResult("SELECT", 1))
				mock.ExpectQuery(`FROM credentials WHERE handle = \$1 FOR UPDATE`).
					WithArgs("root", "ROLE_ADMIN").
					WillReturnError(pgx.ErrNoRows)
				mock.ExpectRollback()
			},
			wantErr: credential.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			err = NewCredentialStore(mock).DeleteUnlessLastAdmin(context.Background(), "root")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCredentialStore_ReplaceRolesUnlessLastAdmin(t *testing.T) {
	at := time.Now().UTC()

	t.Run("refuses demoting the only admin", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		expectAdminGuard(mock, "root", true)
		expectAdminCount(mock, 1)
		mock.ExpectRollback()

		_, err = NewCredentialStore(mock).ReplaceRolesUnlessLastAdmin(context.Background(), "root", []credential.Role{credential.RoleUser}, at)
		assert.ErrorIs(t, err, credential.ErrLastAdmin)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keeping the admin role skips the count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		expectAdminGuard(mock, "root", true)
		mock.ExpectQuery(`UPDATE credentials SET roles = \$2, updated_at = \$3\s+WHERE handle = \$1\s+RETURNING`).
			WithArgs("root", []string{"ROLE_ADMIN", "ROLE_USER"}, at).
			WillReturnRows(pgxmock.NewRows(credentialCols).AddRow(
				"7a1e6c1e-0000-4000-8000-000000000001", "root", "hash", "Root", "", "",
				[]string{"ROLE_ADMIN", "ROLE_USER"}, true, at, at))
		mock.ExpectCommit()

		c, err := NewCredentialStore(mock).ReplaceRolesUnlessLastAdmin(context.Background(), "root",
			[]credential.Role{credential.RoleAdmin, credential.RoleUser}, at)
		require.NoError(t, err)
		assert.Equal(t, []credential.Role{credential.RoleAdmin, credential.RoleUser}, c.Roles)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCredentialStore_CreateFirstAdmin(t *testing.T) {
	tests := []struct {
		name        string
		admins      int
		wantCreated bool
	}{
		{name: "no admin yet", admins: 0, wantCreated: true},
		{name: "admin exists", admins: 1, wantCreated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectBegin()
			mock.ExpectExec(`pg_advisory_xact_lock`).
				WillReturnResult(pgxmock.NewResult("SELECT", 1))
			expectAdminCount(mock, tt.admins)
			if tt.wantCreated {
				mock.ExpectExec(`INSERT INTO credentials`).
					WithArgs(pgxmock.AnyArg(), "root", "h", "Administrator", "", "", []string{"ROLE_ADMIN"}, true, pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}
			mock.ExpectCommit()

			c := &credential.Credential{Handle: "root", PasswordHash: "h", DisplayName: "Administrator", Roles: []credential.Role{credential.RoleAdmin}, Enabled: true}
			created, err := NewCredentialStore(mock).CreateFirstAdmin(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCredentialStore_TargetedWrites(t *testing.T) {
	at := time.Now().UTC()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE credentials SET password_hash = \$3, updated_at = \$4 WHERE handle = \$1 AND password_hash = \$2`).
		WithArgs("ana", "old", "new", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE credentials SET enabled = \$2, updated_at = \$3 WHERE handle = \$1 AND enabled <> \$2`).
		WithArgs("ana", false, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ana").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	store := NewCredentialStore(mock)
	swapped, err := store.SwapPasswordHash(context.Background(), "ana", "old", "new", at)
	require.NoError(t, err)
	assert.False(t, swapped, "a changed hash must not be overwritten")

	_, err = store.SetEnabled(context.Background(), "ana", false, at)
	assert.ErrorIs(t, err, credential.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStore_Recent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, principal, hash, created_at FROM password_history`).
		WithArgs("ana", 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "principal", "hash", "created_at"}).
			AddRow("02", "ana", "h2", now).
			AddRow("01", "ana", "h1", now.Add(-time.Minute)))

	got, err := NewHistoryStore(mock).Recent(context.Background(), "ana", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h2", got[0].Hash)
	assert.NoError(t, mock.ExpectationsWereMet())
}
