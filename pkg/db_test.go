package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationError(t *testing.T) {
	uniqueErr := &pgconn.PgError{Code: "23505", ConstraintName: "entry_username_activity_key_entry_date_key"}
	assert.True(t, IsUniqueViolationError(uniqueErr))
	assert.True(t, IsUniqueViolationError(fmt.Errorf("insert entry: %w", uniqueErr)))

	assert.False(t, IsUniqueViolationError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolationError(errors.New("23505")))
	assert.False(t, IsUniqueViolationError(nil))
}
