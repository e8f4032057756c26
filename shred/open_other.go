//go:build !unix

package shred

import "os"

func openSync(path string) (syncWriter, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_SYNC, 0)
}
