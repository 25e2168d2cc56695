package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeout_CarriesBoundAndOp(t *testing.T) {
	err := Timeout("save", "/tmp/x.json", 2*time.Second, nil)

	assert.Equal(t, CodeTimeout, err.Code)
	assert.Contains(t, err.Error(), "save")
	assert.Contains(t, err.Error(), "2s")
	assert.True(t, err.Retryable())
}

func TestValidation_IncludesPath(t *testing.T) {
	err := Validation("load", "/data/todo.json", "element %d: missing field %q", 3, "text")

	assert.Equal(t, `VALIDATION: load "/data/todo.json": element 3: missing field "text"`, err.Error())
	assert.False(t, err.Retryable())
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	base := IO("save", "/x", fs.ErrPermission)
	wrapped := fmt.Errorf("update: %w", base)

	assert.Equal(t, CodeIO, CodeOf(wrapped))
	assert.True(t, IsIO(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, errors.Is(wrapped, fs.ErrPermission))
}

func TestCodeOf_PlainError(t *testing.T) {
	err := errors.New("plain")

	assert.Equal(t, Code(""), CodeOf(err))
	assert.False(t, IsTimeout(err))
	assert.False(t, IsValidation(err))
	assert.False(t, IsMisuse(err))
	assert.False(t, IsRetryable(err))
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"timeout", Timeout("acquire", "", time.Second, nil), IsTimeout},
		{"validation", Validation("load", "p", "bad"), IsValidation},
		{"misuse", Misuse("acquire", "wrong convention"), IsMisuse},
		{"io", IO("load", "p", fs.ErrClosed), IsIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.is(tt.err))
		})
	}
}

func TestValidationWrap_Unwraps(t *testing.T) {
	inner := errors.New("unexpected end of JSON input")
	err := ValidationWrap("load", "/p", inner, "invalid JSON")

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "invalid JSON")
}
