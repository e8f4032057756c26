//go:build unix

package shred

import (
	"io"

	"golang.org/x/sys/unix"
)

// fdWriter writes straight to a raw descriptor opened with O_SYNC, bypassing
// the buffered *os.File layer.
type fdWriter struct {
	fd int
}

func openSync(path string) (syncWriter, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &fdWriter{fd: fd}, nil
}

func (f *fdWriter) WriteAt(p []byte, off int64) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Pwrite(f.fd, p[written:], off+int64(written))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
		written += n
	}
	return written, nil
}

func (f *fdWriter) Sync() error {
	return unix.Fsync(f.fd)
}

func (f *fdWriter) Close() error {
	return unix.Close(f.fd)
}
