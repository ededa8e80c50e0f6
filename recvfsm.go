package upload

import (
	"bytes"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/seafhttp/upload/tempsink"
)

// DefaultMaxContentLine is the MaxContentLine a RecvFSM uses when its
// caller doesn't override it. It must stay safely above any boundary
// line's length.
const DefaultMaxContentLine = 10240

type recvState int

const (
	stateInit recvState = iota
	stateHeaders
	stateContent
	stateError
)

// Progress is the pair of counters published for one in-flight upload.
// Size is set once and never changes; Uploaded is updated with atomic
// operations so a concurrently polling reader never observes a torn
// 64-bit value.
type Progress struct {
	uploaded int64
	size     int64
}

// NewProgress creates a Progress entry with the given declared size.
func NewProgress(size int64) *Progress {
	return &Progress{size: size}
}

// Add adds n to the uploaded counter. Called from the single worker
// goroutine owning the request; never blocks.
func (p *Progress) Add(n int64) {
	atomic.AddInt64(&p.uploaded, n)
}

// Snapshot atomically reads both counters.
func (p *Progress) Snapshot() (uploaded, size int64) {
	return atomic.LoadInt64(&p.uploaded), p.size
}

// RecvFSM is the per-request streaming multipart state machine. One
// instance is created per in-flight upload request by RequestLifecycle
// and fed body chunks as the transport delivers them.
type RecvFSM struct {
	state    recvState
	boundary string

	RepoID string
	User   string

	line LineBuffer

	formKVs   map[string]string
	inputName string // "" means no part is currently open
	fileName  string

	sink       *tempsink.Sink
	tempDir    string
	recvedCRLF bool

	maxContentLine int

	ProgressID string
	progress   *Progress

	err error
}

// NewRecvFSM constructs a RecvFSM bound to boundary (without its leading
// "--"), repoID/user as resolved from the access token, tempDir as the
// directory new temp files are created under, and a Progress entry
// already inserted into the registry under progressID. maxContentLine
// bounds how long a line inside the file part's payload may grow before
// the FSM gives up waiting for its terminating CRLF and flushes it to
// the sink as a raw byte run; a value ≤ 0 falls back to
// DefaultMaxContentLine.
func NewRecvFSM(boundary, repoID, user, tempDir, progressID string, progress *Progress, maxContentLine int) *RecvFSM {
	if maxContentLine <= 0 {
		maxContentLine = DefaultMaxContentLine
	}
	return &RecvFSM{
		state:          stateInit,
		boundary:       boundary,
		RepoID:         repoID,
		User:           user,
		formKVs:        make(map[string]string),
		tempDir:        tempDir,
		ProgressID:     progressID,
		progress:       progress,
		maxContentLine: maxContentLine,
	}
}

// FormValue returns a received form field's value and whether it was seen.
func (fsm *RecvFSM) FormValue(name string) (string, bool) {
	v, ok := fsm.formKVs[name]
	return v, ok
}

// FileName returns the filename parameter of the file part, if one completed.
func (fsm *RecvFSM) FileName() string { return fsm.fileName }

// SinkPath returns the absolute path of the temp file receiving the file
// part's payload, or "" if no file part has begun.
func (fsm *RecvFSM) SinkPath() string {
	if fsm.sink == nil {
		return ""
	}
	return fsm.sink.Path()
}

// SinkSize stats the temp file's current on-disk size.
func (fsm *RecvFSM) SinkSize() (int64, error) {
	if fsm.sink == nil {
		return 0, errors.New("no file part received")
	}
	return fsm.sink.Size()
}

// HasSink reports whether a file part has begun (and thus a TempSink exists).
func (fsm *RecvFSM) HasSink() bool { return fsm.sink != nil }

// Failed reports whether the FSM has transitioned to its terminal ERROR state.
func (fsm *RecvFSM) Failed() bool { return fsm.state == stateError }

// Err returns the error that drove the FSM into ERROR, if any.
func (fsm *RecvFSM) Err() error { return fsm.err }

// Release discards the TempSink, if any, unlinking its file. Safe to call
// more than once and on a never-started sink. It never removes the
// Progress entry — that is RequestLifecycle's job, run in lock-step with
// FSM release.
func (fsm *RecvFSM) Release() {
	if fsm.sink != nil {
		fsm.sink.Close()
		fsm.sink = nil
	}
}

func (fsm *RecvFSM) fail(err error) error {
	fsm.state = stateError
	fsm.err = err
	return err
}

// Consume feeds one body chunk through the state machine. It must be
// called with chunks in arrival order; it is not safe for concurrent use
// from multiple goroutines against the same FSM.
func (fsm *RecvFSM) Consume(chunk []byte) error {
	if fsm.state == stateError {
		return fsm.err // further body callbacks are ignored
	}

	fsm.progress.Add(int64(len(chunk)))
	fsm.line.Append(chunk)

	for {
		switch fsm.state {
		case stateInit:
			if done, err := fsm.stepInit(); err != nil {
				return err
			} else if !done {
				return nil
			}
		case stateHeaders:
			if done, err := fsm.stepHeaders(); err != nil {
				return err
			} else if !done {
				return nil
			}
		case stateContent:
			if done, err := fsm.stepContent(); err != nil {
				return err
			} else if !done {
				return nil
			}
		case stateError:
			return fsm.err
		}
	}
}

// stepInit consumes at most the first boundary line. It returns done=false
// when it needs more bytes to make progress.
func (fsm *RecvFSM) stepInit() (bool, error) {
	line, ok := fsm.line.ReadLine()
	if !ok {
		return false, nil
	}
	if !containsBoundary(line, fsm.boundary) {
		return false, fsm.fail(BadRequest(errors.New("first body line is not the multipart boundary")))
	}
	fsm.state = stateHeaders
	return true, nil
}

// stepHeaders consumes as many header lines of the current part as are
// available, stopping at the blank line that ends the header block.
func (fsm *RecvFSM) stepHeaders() (bool, error) {
	for {
		line, ok := fsm.line.ReadLine()
		if !ok {
			return false, nil
		}
		if len(line) == 0 {
			if fsm.inputName == "file" {
				sink, err := tempsink.Open(fsm.tempDir, fsm.fileName)
				if err != nil {
					return false, fsm.fail(ServerError(errors.Wrap(err, "opening temp sink")))
				}
				if _, declaredSize := fsm.progress.Snapshot(); declaredSize > 0 {
					// Content-Length bounds the whole request body, not
					// just this part's payload, so this is an upper-bound
					// hint, not an exact size; Reserve is a best-effort
					// preallocation and tolerates being handed too much.
					if err := sink.Reserve(declaredSize); err != nil {
						sink.Close()
						return false, fsm.fail(ServerError(errors.Wrap(err, "reserving temp sink space")))
					}
				}
				if fsm.sink != nil {
					// A second "file" part arrived; the last one wins,
					// matching upstream behavior. Discard the first.
					fsm.sink.Close()
				}
				fsm.sink = sink
			}
			fsm.recvedCRLF = false
			fsm.state = stateContent
			return true, nil
		}
		if err := fsm.parsePartHeader(line); err != nil {
			return false, fsm.fail(BadRequest(err))
		}
	}
}

// stepContent dispatches on whether the currently open part is the file
// part or a small form field.
func (fsm *RecvFSM) stepContent() (bool, error) {
	if fsm.inputName == "file" {
		return fsm.stepFileContent()
	}
	return fsm.stepFieldContent()
}

func (fsm *RecvFSM) stepFieldContent() (bool, error) {
	for {
		line, ok := fsm.line.ReadLine()
		if !ok {
			return false, nil
		}
		if containsBoundary(line, fsm.boundary) {
			fsm.inputName = ""
			fsm.state = stateHeaders
			return true, nil
		}
		fsm.formKVs[fsm.inputName] = string(line)
	}
}

func (fsm *RecvFSM) stepFileContent() (bool, error) {
	for {
		line, ok := fsm.line.ReadLine()
		if !ok {
			if fsm.line.Len() >= fsm.maxContentLine {
				if err := fsm.flushRaw(); err != nil {
					return false, fsm.fail(ServerError(err))
				}
				continue
			}
			return false, nil
		}

		if containsBoundary(line, fsm.boundary) {
			// Do NOT write the trailing CRLF that preceded this boundary:
			// it belongs to the delimiter, not the payload.
			fsm.inputName = ""
			fsm.state = stateHeaders
			return true, nil
		}

		if fsm.recvedCRLF {
			if err := fsm.sink.WriteAll([]byte("\r\n")); err != nil {
				return false, fsm.fail(ServerError(err))
			}
		}
		if err := fsm.sink.WriteAll(line); err != nil {
			return false, fsm.fail(ServerError(err))
		}
		fsm.recvedCRLF = true
	}
}

// flushRaw writes out the buffer's current contents verbatim when no CRLF
// has shown up for MaxContentLine bytes, handling arbitrarily long runs
// of binary data or very long text lines.
func (fsm *RecvFSM) flushRaw() error {
	if fsm.recvedCRLF {
		if err := fsm.sink.WriteAll([]byte("\r\n")); err != nil {
			return err
		}
		fsm.recvedCRLF = false
	}
	var buf bytes.Buffer
	if _, err := fsm.line.DrainTo(&buf); err != nil {
		return err
	}
	return fsm.sink.WriteAll(buf.Bytes())
}

// containsBoundary reports whether line contains the boundary string as a
// substring. This intentionally matches both "--<boundary>" and
// "--<boundary>--", and tolerates trailing whitespace variants, at the
// cost of also matching payload bytes that happen to contain the literal
// boundary text between CRLFs. Senders are expected to pick unique
// boundaries; this risk is accepted verbatim.
func containsBoundary(line []byte, boundary string) bool {
	return strings.Contains(string(line), boundary)
}
