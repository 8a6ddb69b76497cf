package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeValidationFailed, http.StatusBadRequest},
		{CodeSessionNotFound, http.StatusNotFound},
		{CodeDocumentNotFound, http.StatusNotFound},
		{CodeConcurrentStreams, http.StatusTooManyRequests},
		{CodeSpendingLimit, http.StatusPaymentRequired},
		{CodeCircuitOpen, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus, string(tt.code))
	}
}

func TestWrapAndInspect(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := fmt.Errorf("load session: %w", Wrap(cause, CodeDatabaseError, "failed to load session"))

	assert.True(t, IsAppError(err))
	assert.True(t, HasCode(err, CodeDatabaseError))
	assert.False(t, HasCode(err, CodeSessionNotFound))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsAppError_WrapsForeignErrors(t *testing.T) {
	appErr := AsAppError(stderrors.New("boom"))
	assert.Equal(t, CodeUnknown, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	assert.NotContains(t, appErr.Message, "boom")
}

func TestWithDetail_DoesNotMutateShared(t *testing.T) {
	detailed := ErrSessionNotFound.WithDetail("sid=1")
	assert.Equal(t, "sid=1", detailed.Detail)
	assert.Empty(t, ErrSessionNotFound.Detail)
}
