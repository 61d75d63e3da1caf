package database

import (
	"errors"
	"fmt"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "42703"}))

	assert.True(t, IsUniqueViolation(&gomysql.MySQLError{Number: 1062}))
	assert.False(t, IsUniqueViolation(&gomysql.MySQLError{Number: 1045}))

	sqliteErr := errors.New("UNIQUE constraint failed: atomic_grants.permission")
	assert.True(t, IsUniqueViolation(sqliteErr))
	assert.True(t, IsUniqueViolation(fmt.Errorf("create: %w", sqliteErr)))
}
