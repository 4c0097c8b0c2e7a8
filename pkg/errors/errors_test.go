package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// TestNew
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"no commute area", errors.ErrCodeNoCommuteArea, "could not build commute area"},
		{"invalid param", errors.CodeInvalidParam, "add at least one work address"},
		{"upstream", errors.ErrCodeUpstream, "isoline service returned 503"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
		})
	}
}

func TestNew_StackMentionsCaller(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeInternal, "test")
	assert.Contains(t, ae.Stack, "errors_test.go")
}

// ─────────────────────────────────────────────────────────────────────────────
// TestWrap
// ─────────────────────────────────────────────────────────────────────────────

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("connection refused")
	wrapped := errors.Wrap(root, errors.ErrCodeUpstream, "routes request failed")

	require.NotNil(t, wrapped)
	assert.Same(t, root, wrapped.Cause)
	assert.True(t, stderrors.Is(wrapped, root))
}

func TestWrap_UnknownCodeInheritsInner(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeNoCommuteArea, "empty isoline response")
	outer := errors.Wrap(inner, errors.CodeUnknown, "search failed")

	assert.Equal(t, errors.ErrCodeNoCommuteArea, outer.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Error() / WithDetail / WithCause
// ─────────────────────────────────────────────────────────────────────────────

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeOriginIndex, "origin index out of range")
	assert.Equal(t, "[MAP_004] origin index out of range", ae.Error())

	withDetail := ae.WithDetail("index=3 len=2")
	assert.Equal(t, "[MAP_004] origin index out of range: index=3 len=2", withDetail.Error())
	assert.Empty(t, ae.Detail, "WithDetail must not mutate the receiver")
}

func TestWithCause_ReturnsCopy(t *testing.T) {
	t.Parallel()

	base := errors.Upstream("reverse geocode failed")
	cause := fmt.Errorf("status 502")
	withCause := base.WithCause(cause)

	assert.Nil(t, base.Cause)
	assert.Equal(t, cause, withCause.Cause)
}

func TestWithDetail_NilReceiver(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_WalksChain(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeNoCommuteArea, "no features")
	outer := fmt.Errorf("search: %w", inner)

	assert.True(t, errors.IsCode(outer, errors.ErrCodeNoCommuteArea))
	assert.False(t, errors.IsCode(outer, errors.ErrCodeUpstream))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeUpstream))
}

func TestIsCode_FindsOuterAfterWrap(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeUpstream, "boom")
	outer := errors.Wrap(inner, errors.ErrCodeReverseGeocode, "pick failed")

	assert.True(t, errors.IsCode(outer, errors.ErrCodeReverseGeocode))
	assert.True(t, errors.IsCode(outer, errors.ErrCodeUpstream))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeNotFound, "x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeSessionNotFound, "gone")))
	assert.False(t, errors.IsNotFound(errors.Internal("x")))
	assert.False(t, errors.IsNotFound(nil))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeConflict, errors.GetCode(errors.InvalidState("x")))
	assert.Equal(t, errors.ErrCodeBadRequest, errors.GetCode(fmt.Errorf("w: %w", errors.InvalidParam("x"))))
}
