package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistenceWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")

	err := Persistence(cause, "failed to delete division with id %d", 12)
	require.Equal(t, CodePersistence, GetCode(err))
	require.EqualError(t, err, "failed to delete division with id 12: connection reset")
	require.ErrorIs(t, err, cause)
}

func TestPersistencePassesTypedErrorsThrough(t *testing.T) {
	notFound := New(CodeNotFound, "division not found")

	err := Persistence(fmt.Errorf("lookup: %w", notFound), "failed to delete division with id %d", 1)
	require.Equal(t, CodeNotFound, GetCode(err))
	require.Nil(t, Persistence(nil, "unused"))
}

func TestGetCode(t *testing.T) {
	require.Equal(t, Code(""), GetCode(nil))
	require.Equal(t, CodeInternal, GetCode(errors.New("plain")))
	require.True(t, Is(New(CodeCycle, "would create a cycle"), CodeCycle))
	require.False(t, Is(nil, CodeCycle))
}
