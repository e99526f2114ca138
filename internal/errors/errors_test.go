package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/hashtop/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestHasCodeWalksChain(t *testing.T) {
	errFactory := errors.New()

	inner := errFactory.New(errors.ErrNotFound)
	outer := errFactory.Wrap(errors.ErrStorage, fmt.Errorf("lookup miner: %w", inner))

	assert.True(t, errors.HasCode(outer, errors.ErrStorage))
	assert.True(t, errors.HasCode(outer, errors.ErrNotFound))
	assert.False(t, errors.HasCode(outer, errors.ErrConflict))
	assert.False(t, errors.HasCode(stderrors.New("plain"), errors.ErrNotFound))
	assert.False(t, errors.HasCode(nil, errors.ErrNotFound))
}

func TestCodeOf(t *testing.T) {
	errFactory := errors.New()

	assert.Equal(t, errors.ErrConflict, errors.CodeOf(errFactory.New(errors.ErrConflict)))
	assert.Equal(t, errors.ErrValidation,
		errors.CodeOf(fmt.Errorf("ctx: %w", errFactory.New(errors.ErrValidation))))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(stderrors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	assert.Equal(t, "Entity not found", errFactory.New(errors.ErrNotFound).Error())
	assert.Equal(t, "miner gone", errFactory.WithMessage(errors.ErrNotFound, "miner gone").Error())
	assert.Equal(t, "Storage operation failed: disk full",
		errFactory.Wrap(errors.ErrStorage, stderrors.New("disk full")).Error())

	withData := errFactory.WithData(errors.ErrStorage, struct{ Phase string }{Phase: "commit"})
	assert.Equal(t, "Storage operation failed: {commit}", withData.Error())
	assert.Equal(t, struct{ Phase string }{Phase: "commit"}, withData.GetData())
}
