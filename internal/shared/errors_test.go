package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(E(KindValidation, "bad input")))
	assert.Equal(t, KindNotFound, KindOf(Wrap(KindNotFound, "missing", errors.New("no rows"))))

	// Wrapped classified errors keep their kind through fmt.Errorf chains.
	wrapped := fmt.Errorf("handler: %w", E(KindInsufficientStock, "not enough"))
	assert.Equal(t, KindInsufficientStock, KindOf(wrapped))

	// Unclassified errors default to persistence.
	assert.Equal(t, KindPersistence, KindOf(errors.New("connection refused")))
	assert.Equal(t, KindPersistence, KindOf(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("no rows")
	err := Wrap(KindNotFound, "warehouse not found", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "warehouse not found")
	assert.Contains(t, err.Error(), "no rows")
}

func TestUserSafeMessage(t *testing.T) {
	assert.Equal(t, "quantity must be positive", UserSafeMessage(E(KindValidation, "quantity must be positive")))

	// Storage details never reach users.
	dbErr := Wrap(KindPersistence, "insert failed", errors.New(`ERROR: relation "x" does not exist (SQLSTATE 42P01)`))
	msg := UserSafeMessage(dbErr)
	assert.Equal(t, "could not complete operation, please retry", msg)
	assert.NotContains(t, msg, "SQLSTATE")

	assert.Equal(t, "could not complete operation, please retry", UserSafeMessage(errors.New("raw failure")))
}
