package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestLockOrderSortsAndDeduplicates(t *testing.T) {
	keys := []GroupKey{
		{TenantID: "acme", ParentID: int64Ptr(7)},
		{TenantID: "acme"},
		{TenantID: "acme", ParentID: int64Ptr(7)},
		{TenantID: "acme", ParentID: int64Ptr(12)},
	}

	assert.Equal(t, []string{
		"menu_group:acme:12",
		"menu_group:acme:7",
		"menu_group:acme:root",
	}, lockOrder(keys))
}

func TestWithGroupsTakesAdvisoryLocksOnPostgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewMenuStore(sqlx.NewDb(mockDB, DriverPostgres))
	lock := regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)

	mock.ExpectBegin()
	mock.ExpectExec(lock).WithArgs("menu_group::1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(lock).WithArgs("menu_group::root").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	called := false
	err = s.WithGroups(context.Background(), []GroupKey{{}, {ParentID: int64Ptr(1)}}, func(Tx) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithGroupsRollsBackOnError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewMenuStore(sqlx.NewDb(mockDB, DriverPostgres))
	failure := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("menu_group:acme:root").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = s.WithGroups(context.Background(), []GroupKey{{TenantID: "acme"}}, func(Tx) error {
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOrderRebindsForPostgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewMenuStore(sqlx.NewDb(mockDB, DriverPostgres))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE menu_items SET sort_order = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(2, sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = s.WithGroups(context.Background(), []GroupKey{{}}, func(tx Tx) error {
		return tx.SetOrder(context.Background(), 42, 2)
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
