// Package invariant holds small panic-on-violation helpers for conditions
// that indicate a bug in the core itself rather than bad input — the same
// role the teacher's go/store/d package plays (PanicIfTrue/PanicIfFalse/
// PanicIfError), used sparingly and only for invariants spec.md calls out
// explicitly (e.g. "i is strictly increasing per tree").
package invariant

import "fmt"

// PanicIfTrue panics if cond is true.
func PanicIfTrue(cond bool, format string, args ...interface{}) {
	if cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// PanicIfFalse panics if cond is false.
func PanicIfFalse(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// PanicIfError panics if err is non-nil.
func PanicIfError(err error) {
	if err != nil {
		panic(err)
	}
}
