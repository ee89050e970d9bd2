package errors_test

import (
	"errors"
	"testing"

	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeWithMessage(t *testing.T) {
	newErr := ferrors.NotFound.WithMessage("TEST.TXT")
	assert.Equal(t, "file not found: TEST.TXT", newErr.Error())
	assert.ErrorIs(t, newErr, ferrors.NotFound)
}

func TestCodeWrapError(t *testing.T) {
	originalErr := errors.New("short write")
	newErr := ferrors.IOWrite.WrapError(originalErr)

	assert.Equal(t, "durable write to backing store failed: short write", newErr.Error())
	assert.ErrorIs(t, newErr, originalErr)
	assert.ErrorIs(t, newErr, ferrors.IOWrite)
}

func TestCodeIsDistinct(t *testing.T) {
	wrapped := ferrors.NotFound.WithMessage("X.Y")
	assert.NotErrorIs(t, wrapped, ferrors.AlreadyExists)
}
