package upload

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Errors returned by unveil or unveilBlock.
const (
	errUnveil       unveilError = "call to unveil failed"
	errUnveilE2BIG  unveilError = "call to unveil failed: per-process limit reached"
	errUnveilENOENT unveilError = "call to unveil failed: path does not exist"
	errUnveilEINVAL unveilError = "call to unveil failed: invalid value for permissions"
	errUnveilEPERM  unveilError = "call to unveil failed: called after locking"
)

type unveilError string

func (e unveilError) Error() string { return string(e) }

func translateUnveilErrorCode(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case syscall.E2BIG:
		return errUnveilE2BIG
	case syscall.ENOENT:
		return errUnveilENOENT
	case syscall.EINVAL:
		return errUnveilEINVAL
	case syscall.EPERM:
		return errUnveilEPERM
	}
	return err
}

// unveil registers a path that shall remain accessible.
func unveil(path, perm string) error {
	return translateUnveilErrorCode(unix.Unveil(path, perm))
}

// unveilBlock removes access to any remaining paths from this process.
// Call this last, after any invocations of unveil.
func unveilBlock() error {
	return translateUnveilErrorCode(unix.UnveilBlock())
}

// SandboxTempDir restricts filesystem access to tempDir via unveil(2).
func SandboxTempDir(tempDir string) error {
	if err := unveil(tempDir, "rwc"); err != nil {
		return err
	}
	return unveilBlock()
}
