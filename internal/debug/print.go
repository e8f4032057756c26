//go:build !debug

package debug

const Debug = false

// Print is compiled out unless built with -tags debug.
func Print(format string, args ...interface{}) {}
