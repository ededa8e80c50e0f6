//go:build !linux

package tempsink // import "github.com/seafhttp/upload/tempsink"

const reserveThreshold = 1 << 15

// Reserve asks the filesystem to set aside numBytes for the sink's
// eventual contents. On platforms without fallocate(2) this falls back
// to a truncate, which may create a sparse file.
func (s *Sink) Reserve(numBytes int64) error {
	if numBytes <= reserveThreshold {
		return nil
	}
	return s.file.Truncate(numBytes)
}
