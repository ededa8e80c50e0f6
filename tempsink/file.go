package tempsink // import "github.com/seafhttp/upload/tempsink"

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Logf receives diagnostics from operations whose errors are not
// propagated (see Close). It defaults to a no-op; callers that want
// these surfaced should overwrite it once at process startup.
var Logf = func(format string, args ...interface{}) {}

// Sink owns one temp file receiving an in-flight upload's payload.
type Sink struct {
	file *os.File
	path string
}

// Open creates a uniquely named file under dir named "<prefix>XXXXXX",
// mode 0600, and returns a Sink owning it. dir is created (mode 0777) if
// it does not already exist. prefix is reduced to its base name so a
// client-controlled filename cannot escape dir via path separators.
func Open(dir, prefix string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, errors.Wrap(err, "creating temp directory")
	}

	prefix = filepath.Base(prefix)
	if prefix == "" || prefix == "." || prefix == string(filepath.Separator) {
		prefix = "upload"
	}

	f, err := os.CreateTemp(dir, prefix+"*")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp file")
	}
	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.Wrap(err, "setting temp file mode")
	}

	return &Sink{file: f, path: f.Name()}, nil
}

// WriteAll writes every byte of b, looping over short writes. It fails
// only on an unrecoverable I/O error.
func (s *Sink) WriteAll(b []byte) error {
	for len(b) > 0 {
		n, err := s.file.Write(b)
		if err != nil {
			return errors.Wrap(err, "writing to temp file")
		}
		b = b[n:]
	}
	return nil
}

// Path returns the absolute path of the temp file.
func (s *Sink) Path() string {
	return s.path
}

// Size stats the temp file and returns its current on-disk size.
func (s *Sink) Size() (int64, error) {
	fi, err := s.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "statting temp file")
	}
	return fi.Size(), nil
}

// Close unconditionally closes the file descriptor and unlinks the temp
// file. Both steps are attempted regardless of whether the other failed;
// any error is logged via Logf, never returned, so defer s.Close() is
// always safe.
func (s *Sink) Close() {
	if s == nil || s.file == nil {
		return
	}
	if err := s.file.Close(); err != nil {
		Logf("tempsink: closing %s: %v", s.path, err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		Logf("tempsink: removing %s: %v", s.path, err)
	}
	s.file = nil
}
