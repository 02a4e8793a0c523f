// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eloop

import "reflect"

// funcPointer returns the code pointer of a function value, used to give
// TimeoutHandler values an identity for (handler, ctxA, ctxB) matching since
// Go function values aren't otherwise comparable.
func funcPointer(f TimeoutHandler) uintptr {
	if f == nil {
		return 0
	}
	return reflect.ValueOf(f).Pointer()
}
