// SPDX-License-Identifier: MPL-2.0

package session

import "errors"

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrNotFound          = errors.New("session not found")
	ErrIDGeneratorFailed = errors.New("session id generation failed")
)
