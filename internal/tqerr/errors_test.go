package tqerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_RendersAllFields(t *testing.T) {
	cause := errors.New("disk full")
	err := New(CodeManifestUnreadable, "cannot read manifest").
		WithContext("path", "tequio.ini").
		WithCause(cause).
		WithSuggestion("check permissions")

	msg := err.Error()
	assert.Contains(t, msg, "MANIFEST_UNREADABLE")
	assert.Contains(t, msg, "cannot read manifest")
	assert.Contains(t, msg, "path=tequio.ini")
	assert.Contains(t, msg, "disk full")
	assert.Contains(t, msg, "check permissions")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(CodeInternal, "wrapped").WithCause(cause)

	assert.True(t, errors.Is(err, cause))
}

func TestUnknownDependency(t *testing.T) {
	err := UnknownDependency("b", "a")
	assert.Equal(t, CodeUnknownDependency, err.Code)
	assert.Equal(t, "b", err.Context["task"])
	assert.Equal(t, "a", err.Context["dependency"])
}

func TestDependencyCycle(t *testing.T) {
	err := DependencyCycle([]string{"a", "b"})
	assert.Equal(t, CodeDependencyCycle, err.Code)
	assert.Contains(t, err.Context["remaining_tasks"], "a")
	assert.Contains(t, err.Context["remaining_tasks"], "b")
}

func TestProcessExitNonZero(t *testing.T) {
	err := ProcessExitNonZero("srv", 7)
	assert.Equal(t, 7, err.Context["exit_code"])
	assert.Contains(t, err.Error(), "code 7")
}
