package pkg

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MapsSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad kind", ErrBadRequest), http.StatusBadRequest, CodeBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{fmt.Errorf("%w: session", ErrNotFound), http.StatusNotFound, CodeNotFound},
		{ErrConflict, http.StatusConflict, CodeConflict},
		{ErrTargetUnreachable, http.StatusUnprocessableEntity, CodeTargetUnreachable},
		{ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
		{errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp APIResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestJSONAndErrorWithMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, map[string]int{"n": 1})
	assert.JSONEq(t, `{"success":true,"data":{"n":1}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	ErrorWithMessage(rec, http.StatusUnauthorized, "authorization header required")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"authorization header required"}`, rec.Body.String())
}
