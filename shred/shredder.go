package shred

import (
	"fmt"
	"os"
	"sync"

	"github.com/project-imas/securefoundation/audit"
	"github.com/project-imas/securefoundation/errs"
)

// Shredder runs shred operations one at a time and records each in the
// audit log.
type Shredder struct {
	mu        sync.Mutex
	passSize  int
	passCount int
	appendEOF bool
	audit     audit.Logger
}

// Option configures a Shredder.
type Option func(*Shredder)

// WithPasses overrides the pass size and pass count.
func WithPasses(passSize, passCount int) Option {
	return func(s *Shredder) {
		s.passSize = passSize
		s.passCount = passCount
	}
}

// WithEOFMarker toggles the final EOFMarker pass.
func WithEOFMarker(enabled bool) Option {
	return func(s *Shredder) { s.appendEOF = enabled }
}

// WithAuditLogger routes shred events to logger.
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *Shredder) { s.audit = logger }
}

func New(opts ...Option) *Shredder {
	s := &Shredder{
		passSize:  DefaultPassSize,
		passCount: DefaultPasses,
		appendEOF: true,
		audit:     audit.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shred overwrites path in place.
func (s *Shredder) Shred(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := File(path, s.passSize, s.passCount, s.appendEOF)
	s.record("shred", path, err)
	return err
}

// ShredTo moves path to dest and overwrites it there, leaving only the
// scrubbed copy at dest.
func (s *Shredder) ShredTo(path, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Rename(path, dest); err != nil {
		err = fmt.Errorf("%w: failed to move %s to %s: %v", errs.ErrStorage, path, dest, err)
		s.record("shred_to", path, err)
		return err
	}

	err := File(dest, s.passSize, s.passCount, s.appendEOF)
	s.record("shred_to", dest, err)
	return err
}

// Remove shreds path and unlinks it.
func (s *Shredder) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := Remove(path, s.passSize, s.passCount, s.appendEOF)
	s.record("remove", path, err)
	return err
}

func (s *Shredder) record(mode, path string, err error) {
	metadata := map[string]interface{}{
		"mode":   mode,
		"path":   path,
		"passes": s.passCount,
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	_ = s.audit.Log(audit.ActionShred, err == nil, metadata)
}
