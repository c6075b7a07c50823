package mdlerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageFormatWithCause(t *testing.T) {
	err := New(DocumentNotValidYet, errors.New("boom"))
	assert.Equal(t, "Document is not valid yet: boom - 2002 - DocumentNotValidYet", err.Error())
}

func TestNewMessageFormatWithoutCause(t *testing.T) {
	err := New(DocumentNotValidYet, nil)
	assert.Equal(t, "Document is not valid yet - 2002 - DocumentNotValidYet", err.Error())
}

func TestCodeOfIgnoresStringWrappedErrors(t *testing.T) {
	inner := New(DocTypeMismatch, nil)
	wrapped := errors.New("context: " + inner.Error())
	_, ok := CodeOf(wrapped)
	assert.False(t, ok, "CodeOf only sees through errors implementing Unwrap")

	code, ok := CodeOf(inner)
	require.True(t, ok)
	assert.Equal(t, DocTypeMismatch, code)
}

func TestElementErrorsAggregation(t *testing.T) {
	errs := ElementErrors{}
	errs.Set("org.iso.18013.5.1", "given_name", MsoDigestMismatch)
	errs.Set("org.iso.18013.5.1", "family_name", ValueDigestsMissingForDigestId)
	assert.Equal(t, 2, errs.Len())

	agg := NewErrorsError(errs)
	assert.Equal(t, MsoDigestMismatch, agg.Errors["org.iso.18013.5.1"]["given_name"])
	assert.Contains(t, agg.Error(), "2")
}

func TestLabelFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, "UnknownError", Code(999999).Label())
}
