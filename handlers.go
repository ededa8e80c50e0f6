package upload

import (
	"context"
	"net/url"
	"path"
	"strconv"

	"github.com/pkg/errors"

	"github.com/seafhttp/upload/repoclient"
)

// DefaultMaxUploadSize bounds the temp file's on-disk size, checked
// after the body has been fully received, when a caller doesn't
// override it via config.Config.MaxUploadSize.
const DefaultMaxUploadSize = 100 << 20 // 100 MiB

// Outcome is what an upload or update handler produces: either a
// success redirect or a HandlerError carrying an ErrorCode, both of
// which RequestLifecycle turns into a 302.
type Outcome struct {
	RedirectURL string
}

// commonChecks validates the received temp file against maxUploadSize
// (≤ 0 falls back to DefaultMaxUploadSize) and the repository's quota,
// shared by both the upload and update paths.
func commonChecks(ctx context.Context, client repoclient.Client, fsm *RecvFSM, maxUploadSize int64) error {
	if !fsm.HasSink() {
		return HandlerError(ErrorRecv, errors.New("no file part was received"))
	}
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	size, err := fsm.SinkSize()
	if err != nil {
		return HandlerError(ErrorInternal, err)
	}
	if size > maxUploadSize {
		return HandlerError(ErrorSize, errors.Errorf("file too large: %d bytes", size))
	}
	if err := client.CheckQuota(ctx, fsm.RepoID); err != nil {
		return HandlerError(ErrorQuota, err)
	}
	return nil
}

// mapIngestError maps the back end's untyped ingest failure to the
// fixed set of redirect-carried error codes. Anything unrecognized
// becomes ErrorInternal.
func mapIngestError(err error, notExistCode, existsCode ErrorCode) ErrorCode {
	switch {
	case errors.Is(err, repoclient.ErrInvalidFilename):
		return ErrorFilename
	case errors.Is(err, repoclient.ErrFileExists):
		return existsCode
	case errors.Is(err, repoclient.ErrFileNotExist):
		return notExistCode
	default:
		return ErrorInternal
	}
}

// HandleUpload implements the POST /upload/<token> completion path:
// requires form_kvs["parent_dir"], de-duplicates the submitted filename
// against the repository's current listing, and ingests the temp file
// as a new object.
func HandleUpload(ctx context.Context, client repoclient.Client, fsm *RecvFSM, serviceURL string, maxUploadSize int64) (Outcome, error) {
	parentDir, ok := fsm.FormValue("parent_dir")
	if !ok || parentDir == "" {
		return Outcome{}, BadRequest(errors.New("missing required form field parent_dir"))
	}

	if err := commonChecks(ctx, client, fsm, maxUploadSize); err != nil {
		return Outcome{}, withUploadErrorRedirect(err, serviceURL, fsm.RepoID, parentDir, fsm.FileName())
	}

	uniqueName, err := GenUniqueFilename(ctx, client, fsm.RepoID, parentDir, fsm.FileName())
	if err != nil {
		return Outcome{}, withUploadErrorRedirect(HandlerError(ErrorInternal, err), serviceURL, fsm.RepoID, parentDir, fsm.FileName())
	}

	err = client.PostFile(ctx, fsm.RepoID, fsm.SinkPath(), parentDir, uniqueName, fsm.User)
	if err != nil {
		code := mapIngestError(err, ErrorNotExist, ErrorExists)
		return Outcome{}, withUploadErrorRedirect(HandlerError(code, err), serviceURL, fsm.RepoID, parentDir, fsm.FileName())
	}

	return Outcome{
		RedirectURL: serviceURL + "/repo/" + url.PathEscape(fsm.RepoID) + "?p=" + url.QueryEscape(parentDir),
	}, nil
}

// HandleUpdate implements the POST /update/<token> completion path:
// requires form_kvs["target_file"], and ingests the temp file as a
// replacement for that existing object.
func HandleUpdate(ctx context.Context, client repoclient.Client, fsm *RecvFSM, serviceURL string, maxUploadSize int64) (Outcome, error) {
	targetFile, ok := fsm.FormValue("target_file")
	if !ok || targetFile == "" {
		return Outcome{}, BadRequest(errors.New("missing required form field target_file"))
	}

	if err := commonChecks(ctx, client, fsm, maxUploadSize); err != nil {
		return Outcome{}, withUpdateErrorRedirect(err, serviceURL, fsm.RepoID, targetFile)
	}

	parentDir := path.Dir(targetFile)
	filename := path.Base(targetFile)

	err := client.PutFile(ctx, fsm.RepoID, fsm.SinkPath(), parentDir, filename, fsm.User)
	if err != nil {
		code := mapIngestError(err, ErrorNotExist, ErrorExists)
		return Outcome{}, withUpdateErrorRedirect(HandlerError(code, err), serviceURL, fsm.RepoID, targetFile)
	}

	return Outcome{
		RedirectURL: serviceURL + "/repo/" + url.PathEscape(fsm.RepoID) + "?p=" + url.QueryEscape(parentDir),
	}, nil
}

// withUploadErrorRedirect turns a HandlerError into the upload_error
// redirect target carrying its code; non-HandlerErrors (BadRequest,
// ServerError) pass through unchanged so RequestLifecycle replies
// 400/500 instead of redirecting.
func withUploadErrorRedirect(err error, serviceURL, repoID, parentDir, fileName string) error {
	code, ok := AsHandlerCode(err)
	if !ok {
		return err
	}
	return &redirectError{
		err: err,
		url: serviceURL + "/repo/upload_error/" + url.PathEscape(repoID) +
			"?p=" + url.QueryEscape(parentDir) +
			"&fn=" + url.QueryEscape(fileName) +
			"&err=" + codeString(code),
	}
}

func withUpdateErrorRedirect(err error, serviceURL, repoID, targetFile string) error {
	code, ok := AsHandlerCode(err)
	if !ok {
		return err
	}
	return &redirectError{
		err: err,
		url: serviceURL + "/repo/update_error/" + url.PathEscape(repoID) +
			"?p=" + url.QueryEscape(targetFile) +
			"&err=" + codeString(code),
	}
}

// redirectError carries a ready-made redirect URL for a HandlerError, so
// RequestLifecycle doesn't need to re-derive it.
type redirectError struct {
	err error
	url string
}

func (e *redirectError) Error() string { return e.err.Error() }
func (e *redirectError) Unwrap() error { return e.err }

// RedirectURL extracts the redirect target from err if it carries one.
func RedirectURL(err error) (string, bool) {
	var target *redirectError
	if errors.As(err, &target) {
		return target.url, true
	}
	return "", false
}

func codeString(c ErrorCode) string {
	return strconv.Itoa(int(c))
}
