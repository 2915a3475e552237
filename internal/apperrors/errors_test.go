package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := New(KindNotFound, "order %s not found", "o-1")
	wrapped := fmt.Errorf("loading order: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrAlreadyPaid))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.Equal(t, "order o-1 not found", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(KindGatewayUnavailable, cause, "create checkout session")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "create checkout session: dial tcp: timeout", err.Error())
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
}

func TestSignatureErrorsMatchSentinel(t *testing.T) {
	err := Wrap(KindInvalidSignature, errors.New("no signatures found matching the expected signature"), "verify webhook")

	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "invalid signature", ErrInvalidSignature.Message)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestStatusFor(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:           http.StatusNotFound,
		KindInvalidInput:       http.StatusBadRequest,
		KindInvalidSignature:   http.StatusBadRequest,
		KindGatewayUnavailable: http.StatusServiceUnavailable,
		KindAlreadyPaid:        http.StatusConflict,
		KindConflictingState:   http.StatusConflict,
		KindUnauthorized:       http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, StatusFor(kind), kind)
	}
}
