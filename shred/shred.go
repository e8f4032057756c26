// Package shred overwrites file contents before they are unlinked.
//
// Every pass is written through a freshly opened write-through descriptor and
// flushed to the device before the next pass starts, so the operating system
// cannot coalesce the passes into a single physical write.
package shred

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/project-imas/securefoundation/errs"
)

const (
	// DefaultPassSize is the write block size used by Remove callers that do not care.
	DefaultPassSize = 4096

	// DefaultPasses is zeros, ones, random.
	DefaultPasses = 3

	// EOFMarker fills the file on the optional final pass.
	EOFMarker byte = 0x1A
)

// Pattern is the byte pattern written on one pass.
type Pattern int

const (
	PatternZeros Pattern = iota
	PatternOnes
	PatternRandom
	PatternEOF
)

func (p Pattern) String() string {
	switch p {
	case PatternZeros:
		return "zeros"
	case PatternOnes:
		return "ones"
	case PatternRandom:
		return "random"
	case PatternEOF:
		return "eof"
	default:
		return fmt.Sprintf("pattern(%d)", int(p))
	}
}

// PatternFor returns the pattern of the zero-based pass number. Passes cycle
// through zeros, ones and random data.
func PatternFor(pass int) Pattern {
	return Pattern(pass % 3)
}

// syncWriter is a write-through handle to the file being shredded.
type syncWriter interface {
	io.WriterAt
	Sync() error
	Close() error
}

// File overwrites the existing contents of path passCount times, writing
// passSize bytes at a time from offset zero, and optionally finishes with a
// pass of EOFMarker bytes. The file keeps its length and name; unlinking it is
// the caller's job.
//
// A failure on any pass aborts the remaining passes and is returned wrapped in
// errs.ErrStorage.
func File(path string, passSize, passCount int, appendEOF bool) error {
	if passSize <= 0 || passCount <= 0 {
		return errs.ErrInvalidLength
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: failed to stat %s: %v", errs.ErrStorage, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", errs.ErrInput, path)
	}

	size := info.Size()
	buf := make([]byte, passSize)

	for pass := 0; pass < passCount; pass++ {
		pattern := PatternFor(pass)
		if err = overwrite(path, size, buf, pattern); err != nil {
			return fmt.Errorf("%w: pass %d of %d (%s) failed: %v", errs.ErrStorage, pass+1, passCount, pattern, err)
		}
	}

	if appendEOF {
		if err = overwrite(path, size, buf, PatternEOF); err != nil {
			return fmt.Errorf("%w: end-of-file pass failed: %v", errs.ErrStorage, err)
		}
	}

	return nil
}

// Remove shreds path and then unlinks it.
func Remove(path string, passSize, passCount int, appendEOF bool) error {
	if err := File(path, passSize, passCount, appendEOF); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: failed to remove %s: %v", errs.ErrStorage, path, err)
	}
	return nil
}

// overwrite performs one pass over the first size bytes of path.
func overwrite(path string, size int64, buf []byte, pattern Pattern) error {
	w, err := openSync(path)
	if err != nil {
		return fmt.Errorf("failed to open for overwrite: %w", err)
	}

	if err = fill(w, size, buf, pattern); err != nil {
		_ = w.Close()
		return err
	}

	if err = w.Sync(); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to flush pass: %w", err)
	}

	return w.Close()
}

func fill(w io.WriterAt, size int64, buf []byte, pattern Pattern) error {
	switch pattern {
	case PatternZeros:
		setAll(buf, 0x00)
	case PatternOnes:
		setAll(buf, 0xFF)
	case PatternEOF:
		setAll(buf, EOFMarker)
	}

	var written int64
	for written < size {
		chunk := buf
		if remaining := size - written; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		if pattern == PatternRandom {
			if _, err := rand.Read(chunk); err != nil {
				return fmt.Errorf("failed to generate random pass data: %w", err)
			}
		}

		n, err := w.WriteAt(chunk, written)
		if err != nil {
			return fmt.Errorf("write at offset %d failed: %w", written, err)
		}
		written += int64(n)
	}

	return nil
}

func setAll(buf []byte, b byte) {
	for i := range buf {
		buf[i] = b
	}
}
