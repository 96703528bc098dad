package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("file truncated")
	err := Wrap(cause, "reading study data")

	assert.Contains(t, err.Error(), "reading study data")
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "nothing"))
	assert.Nil(t, Wrapf(nil, "nothing %d", 1))
	assert.Nil(t, WithCode(CodeIngestError, nil))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeIngestError, stderrors.New("bad header"))
	assert.Equal(t, CodeIngestError, GetCode(err))

	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestWrapKeepsExistingCode(t *testing.T) {
	inner := New(CodeCompareError, "outcomes differ")
	err := Wrap(inner, "ranking models")
	assert.Equal(t, CodeCompareError, GetCode(err))
}
