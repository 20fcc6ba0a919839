// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultIDLength is the number of random bytes used for an id, before
// encoding.
const DefaultIDLength = 20

// NewID generates an ID with an optional prefix. The ID generated is suitable
// for a Request's state or nonce.
func NewID(prefix string) (string, error) {
	const op = "NewID"
	b, err := uuid.GenerateRandomBytes(DefaultIDLength)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	id := base64.RawURLEncoding.EncodeToString(b)
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, id), nil
	}
	return id, nil
}
