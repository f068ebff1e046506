package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quiltlab/quilt/errors"
)

func TestTaxonomyHelpers(t *testing.T) {
	cfg := errors.NewConfigurationError("threshold %v out of range", 1.5)
	assert.True(t, errors.IsConfiguration(cfg))
	assert.False(t, errors.IsInvariant(cfg))
	assert.Contains(t, cfg.Error(), "threshold 1.5 out of range")

	inv := errors.NewInvariantViolation("loop did not converge after %d passes", 7)
	assert.True(t, errors.IsInvariant(inv))
	assert.False(t, errors.IsConfiguration(inv))
}

func TestWrapCollaborator_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := errors.WrapCollaborator(cause, "embedding request failed")

	assert.True(t, errors.IsCollaborator(err))
	assert.Contains(t, err.Error(), "embedding request failed")
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(errors.ErrCacheIntegrity, "entry definitions/abc123")
	err = errors.Wrapf(err, "stage %s failed", "definition-generator")

	assert.True(t, errors.IsCacheIntegrity(err))
	assert.False(t, errors.IsNotFound(err))
}

func TestHelpersHandleNil(t *testing.T) {
	assert.False(t, errors.IsConfiguration(nil))
	assert.False(t, errors.IsCollaborator(nil))
	assert.False(t, errors.IsCacheIntegrity(nil))
	assert.False(t, errors.IsInvariant(nil))
	assert.False(t, errors.IsNotFound(nil))
}
