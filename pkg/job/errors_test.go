package job

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBadInputSurfacesMessage(t *testing.T) {
	err := BadInput("file %s is reserved", "commands.txt")
	assert.Equal(t, "file commands.txt is reserved", err.Error())
	assert.True(t, IsBadInput(err))
	assert.False(t, IsInternal(err))
}

func TestInternalHidesDetail(t *testing.T) {
	cause := errors.New("open /secret/path: permission denied")
	err := Internal(cause)

	assert.Equal(t, "internal error", err.Error())
	assert.Equal(t, cause.Error(), err.Detail())
	assert.True(t, IsInternal(err))
	assert.False(t, IsBadInput(err))
	assert.ErrorIs(t, err, cause)
}

func TestKindSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("start job: %w", BadInput("job is already running"))
	assert.True(t, IsBadInput(wrapped))

	assert.False(t, IsBadInput(errors.New("plain")))
	assert.False(t, IsInternal(errors.New("plain")))
}
