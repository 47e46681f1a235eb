package identity

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{"id", "username", "email", "role", "department_id", "active", "created_at", "updated_at"}

func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewStore(sqlx.NewDb(mockDB, "postgres")), mock
}

func TestStoreGetDepartmentUser(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(selectUsers + " WHERE id = $1")).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-1", "alice", "alice@example.com", "DEPARTMENT_USER", "dept-it", true, now, now))

	ident, err := s.Get(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, DepartmentUser{Department: "dept-it"}, ident.Role)
	dept, ok := ident.Department()
	assert.True(t, ok)
	assert.Equal(t, "dept-it", dept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetAdminIgnoresDepartmentColumn(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(selectUsers + " WHERE id = $1")).
		WithArgs("u-2").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-2", "root", "", "ADMIN", nil, true, now, now))

	ident, err := s.Get(context.Background(), "u-2")
	require.NoError(t, err)
	assert.True(t, ident.IsAdmin())
	_, ok := ident.Department()
	assert.False(t, ok)
}

func TestStoreGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectUsers + " WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreGetUnknownRole(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(selectUsers + " WHERE id = $1")).
		WithArgs("u-3").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-3", "mallory", "", "SUPERUSER", nil, true, now, now))

	_, err := s.Get(context.Background(), "u-3")
	assert.Error(t, err)
}

func TestStoreUpdateRole(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET role = $1, department_id = $2, updated_at = $3 WHERE id = $4`)).
		WithArgs("DEPARTMENT_USER", "dept-hr", sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET role = $1, department_id = $2, updated_at = $3 WHERE id = $4`)).
		WithArgs("VIEWER", nil, sqlmock.AnyArg(), "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.UpdateRole(context.Background(), "u-1", DepartmentUser{Department: "dept-hr"}, time.Now()))
	assert.ErrorIs(t, s.UpdateRole(context.Background(), "gone", Viewer{}, time.Now()), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
