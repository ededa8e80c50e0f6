//go:build !openbsd

package upload

// unveil registers a path that shall remain accessible. Nop on this
// operating system.
func unveil(path, perm string) error {
	return nil
}

// unveilBlock removes access to any remaining paths from this process.
// Call this last, after any invocations of unveil. Nop on this
// operating system.
func unveilBlock() error {
	return nil
}

// SandboxTempDir restricts filesystem access to tempDir, where it is
// supported by the OS (see sandbox_openbsd.go); elsewhere it is a nop.
// cmd/seafhttp-upload calls this once at startup, before serving any
// request, since TempDir is the only path this process ever needs to
// read from or write to.
func SandboxTempDir(tempDir string) error {
	if err := unveil(tempDir, "rwc"); err != nil {
		return err
	}
	return unveilBlock()
}
