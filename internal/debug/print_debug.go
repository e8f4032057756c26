//go:build debug

package debug

import (
	"fmt"
	"os"
)

const Debug = true

// Print writes to stderr so it never mixes with command output.
func Print(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[sf debug] "+format, args...)
}
