package errors

import (
	"fmt"
	"testing"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-mysql/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs(t *testing.T) {
	badConn := mysql.ErrBadConn
	err := errors.AddStack(badConn)
	assert.True(t, Is(err, badConn))
	assert.True(t, Is(errors.WithMessage(err, "execute"), badConn))
	assert.True(t, Is(fmt.Errorf("wrapped: %w", err), badConn))
	assert.False(t, Is(errors.New("other"), badConn))
	assert.False(t, Is(nil, badConn))
	assert.True(t, Is(nil, nil))
}

func TestFindMyError(t *testing.T) {
	myErr := mysql.NewError(mysql.ER_DUP_ENTRY, "Duplicate entry 'a' for key 'PRIMARY'")

	found, ok := FindMyError(errors.Trace(myErr))
	require.True(t, ok)
	assert.Equal(t, uint16(mysql.ER_DUP_ENTRY), found.Code)

	found, ok = FindMyError(fmt.Errorf("query: %w", errors.WithMessage(myErr, "prepare")))
	require.True(t, ok)
	assert.Same(t, myErr, found)

	_, ok = FindMyError(errors.New("no server error"))
	assert.False(t, ok)
}
