package upload

import (
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/seafhttp/upload/repoclient"
	"github.com/seafhttp/upload/tokenauth"
)

// ChunkSize is the size of the buffer RequestLifecycle reads the body
// into before handing each chunk to RecvFSM.Consume.
const ChunkSize = 32 * 1024

// RequestLifecycle is the net/http.Handler for the POST /upload/<token>
// and POST /update/<token> routes. It owns a request end to end:
// header validation, streaming body consumption, dispatch to the
// upload or update handler, and unconditional teardown of the
// RecvFSM/Progress pair it allocated.
//
// Composition mirrors the teacher's Handler/NewHandler(scope, next)
// idiom: RequestLifecycle wraps nothing itself (there is no "next" —
// it is the terminal handler for these two routes) but is built the
// same way, as one long-lived value holding its collaborators.
type RequestLifecycle struct {
	Resolver   tokenauth.Resolver
	Client     repoclient.Client
	Registry   *ProgressRegistry
	TempDir    string
	ServiceURL string
	Logger     *log.Logger

	// MaxUploadSize and MaxContentLine carry the operator's configured
	// limits (config.Config) down to the RecvFSM/handler calls this
	// lifecycle drives. Zero falls back to DefaultMaxUploadSize /
	// DefaultMaxContentLine.
	MaxUploadSize  int64
	MaxContentLine int

	// Secrets, when non-empty, additionally requires every request to
	// carry a valid "Authorization: Signature" header, verified with
	// tokenauth.AuthenticateRequest before setup begins — the teacher's
	// original request-signing scheme, applied here to the upload
	// request itself rather than to per-link tokens. Left empty (the
	// default), this layer is disabled and only Resolver governs
	// access. TimestampTolerance bounds the accepted clock drift for
	// the signed "Timestamp" header; unused when Secrets is empty.
	Secrets            map[string][]byte
	TimestampTolerance uint64
}

// NewRequestLifecycle wires the collaborators RequestLifecycle needs. A
// nil Logger falls back to log.Default(). maxUploadSize/maxContentLine ≤ 0
// fall back to their package defaults.
func NewRequestLifecycle(resolver tokenauth.Resolver, client repoclient.Client, registry *ProgressRegistry, tempDir, serviceURL string, logger *log.Logger, maxUploadSize int64, maxContentLine int) *RequestLifecycle {
	if logger == nil {
		logger = log.Default()
	}
	return &RequestLifecycle{
		Resolver:       resolver,
		Client:         client,
		Registry:       registry,
		TempDir:        tempDir,
		ServiceURL:     serviceURL,
		Logger:         logger,
		MaxUploadSize:  maxUploadSize,
		MaxContentLine: maxContentLine,
	}
}

// ServeHTTP implements the header-arrival through teardown lifecycle
// described in §4.7: setup (1–5), streaming consume, dispatch, and an
// unconditional release of whatever was allocated, on every exit path.
func (rl *RequestLifecycle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	isUpdate, err := routeKind(r.URL.Path)
	if err != nil {
		rl.reject(w, r, BadRequest(err))
		return
	}

	if len(rl.Secrets) > 0 {
		if status, err := tokenauth.AuthenticateRequest(r.Header, rl.Secrets, uint64(time.Now().Unix()), rl.TimestampTolerance); err != nil {
			w.Header().Set("Connection", "close")
			http.Error(w, err.Error(), status)
			return
		}
	}

	fsm, progressID, err := rl.setup(r)
	if err != nil {
		rl.reject(w, r, err)
		return
	}
	// Every exit path — success, handler failure, or a read error mid
	// body — releases the FSM's temp file and removes the Progress
	// entry. Client disconnect reaches here too: http.Server's read
	// loop returns an error from r.Body.Read, which propagates out of
	// the consume loop below into this same deferred teardown.
	defer func() {
		fsm.Release()
		rl.Registry.Remove(progressID)
	}()

	if err := rl.consume(fsm, r.Body); err != nil {
		rl.reject(w, r, err)
		return
	}

	var outcome Outcome
	if isUpdate {
		outcome, err = HandleUpdate(r.Context(), rl.Client, fsm, rl.ServiceURL, rl.MaxUploadSize)
	} else {
		outcome, err = HandleUpload(r.Context(), rl.Client, fsm, rl.ServiceURL, rl.MaxUploadSize)
	}
	if err != nil {
		rl.reject(w, r, err)
		return
	}

	http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
}

// routeKind reports whether path is an /update/<token> route (true) or
// an /upload/<token> route (false), or fails if it matches neither.
func routeKind(p string) (isUpdate bool, err error) {
	switch {
	case strings.HasPrefix(p, "/upload/"):
		return false, nil
	case strings.HasPrefix(p, "/update/"):
		return true, nil
	default:
		return false, errors.Errorf("unrecognized route: %q", p)
	}
}

// tokenFromPath returns the URL path's final segment, the opaque
// upload token.
func tokenFromPath(p string) string {
	return path.Base(p)
}

// setup performs §4.7 steps 1–5: resolve the token, extract the
// boundary, parse the required headers, and register a fresh
// Progress/RecvFSM pair. On any failure it releases whatever it had
// already allocated before returning the error.
func (rl *RequestLifecycle) setup(r *http.Request) (fsm *RecvFSM, progressID string, err error) {
	token := tokenFromPath(r.URL.Path)
	repoID, user, err := rl.Resolver.CheckAccessToken(token)
	if err != nil {
		return nil, "", BadRequest(errors.Wrap(err, "checking access token"))
	}

	boundary, err := ExtractBoundary(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", BadRequest(err)
	}

	if r.ContentLength < 0 {
		return nil, "", BadRequest(errors.New("missing Content-Length"))
	}

	progressID = r.URL.Query().Get("X-Progress-ID")
	if progressID == "" {
		return nil, "", BadRequest(errors.New("missing X-Progress-ID query parameter"))
	}

	progress := NewProgress(r.ContentLength)
	if err := rl.Registry.Insert(progressID, progress); err != nil {
		return nil, "", BadRequest(errors.Wrap(err, "registering progress id"))
	}

	fsm = NewRecvFSM(boundary, repoID, user, rl.TempDir, progressID, progress, rl.MaxContentLine)
	return fsm, progressID, nil
}

// consume reads body in ChunkSize pieces and feeds each to fsm.Consume,
// stopping at EOF or the first error from either the read or the FSM.
func (rl *RequestLifecycle) consume(fsm *RecvFSM, body io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if err := fsm.Consume(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return ServerError(errors.Wrap(readErr, "reading request body"))
		}
	}
}

// reject sends the reply appropriate to err's kind: BadRequest/ServerError
// become a short plain-text status reply and disable keepalive; a
// HandlerError (redirect-carrying) becomes a 302; anything else is
// logged and treated as a 500.
func (rl *RequestLifecycle) reject(w http.ResponseWriter, r *http.Request, err error) {
	if url, ok := RedirectURL(err); ok {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	w.Header().Set("Connection", "close")
	switch {
	case IsBadRequest(err):
		rl.Logger.Printf("bad request for %s: %v", r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	case IsServerError(err):
		rl.Logger.Printf("server error for %s: %v", r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		rl.Logger.Printf("unhandled error for %s: %v", r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
