// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCallbackError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		query     url.Values
		want      *CallbackError
		wantIsErr error
	}{
		{
			name:  "no-error",
			query: url.Values{"code": {"c"}, "state": {"s"}},
		},
		{
			name:      "access-denied",
			query:     url.Values{"error": {"access_denied"}, "error_description": {"user said no"}},
			want:      &CallbackError{Code: "access_denied", Description: "user said no"},
			wantIsErr: ErrAccessDenied,
		},
		{
			name:      "login-required",
			query:     url.Values{"error": {"login_required"}},
			want:      &CallbackError{Code: "login_required"},
			wantIsErr: ErrAccessDenied,
		},
		{
			name:      "server-error",
			query:     url.Values{"error": {"server_error"}, "error_uri": {"https://docs"}},
			want:      &CallbackError{Code: "server_error", URI: "https://docs"},
			wantIsErr: ErrLoginFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			got := NewCallbackError(tt.query)
			if tt.want == nil {
				assert.Nil(got)
				return
			}
			assert.Equal(tt.want, got)
			assert.True(errors.Is(got, tt.wantIsErr))
			assert.Contains(got.Error(), tt.want.Code)
		})
	}
}
