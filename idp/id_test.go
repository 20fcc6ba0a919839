// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	wantLen := base64.RawURLEncoding.EncodedLen(DefaultIDLength)
	tests := []struct {
		name    string
		prefix  string
		wantLen int
	}{
		{name: "no-prefix", wantLen: wantLen},
		{name: "with-prefix", prefix: "alice", wantLen: wantLen + len("alice_")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewID(tt.prefix)
			require.NoError(err)
			if tt.prefix != "" {
				assert.True(strings.HasPrefix(got, tt.prefix+"_"))
			}
			assert.Equalf(tt.wantLen, len(got), "NewID() = %v, with len of %d and wanted len of %v", got, len(got), tt.wantLen)
		})
	}
}
