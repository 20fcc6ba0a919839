// SPDX-License-Identifier: MPL-2.0

package assets

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidModule    = errors.New("invalid webassembly module")
	ErrNotLoaded        = errors.New("module not loaded")
)
