package tempsink // import "github.com/seafhttp/upload/tempsink"

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reserveThreshold mirrors protofile's reserveFileSizeThreshold: below
// this, preallocating disk space isn't worth the syscall.
const reserveThreshold = 1 << 15

// Reserve asks the filesystem to set aside numBytes for the sink's
// eventual contents, so a large sequential write doesn't fragment. It is
// a best-effort hint: unsupported filesystems are tolerated silently.
func (s *Sink) Reserve(numBytes int64) error {
	if numBytes <= reserveThreshold {
		return nil
	}
	fd := int(s.file.Fd())
	err := unix.Fallocate(fd, 0, 0, numBytes)
	if err == syscall.EOPNOTSUPP || err == syscall.ENOSYS {
		return nil
	}
	return err
}
