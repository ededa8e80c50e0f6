package upload

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/seafhttp/upload/repoclient"
)

var errTest = errors.New("quota exceeded")

// stubClient is a configurable repoclient.Client for exercising
// HandleUpload/HandleUpdate without a real back end.
type stubClient struct {
	quotaErr    error
	listNames   []string
	listErr     error
	postErr     error
	putErr      error
	postedName  string
	postedDir   string
	putName     string
	putDir      string
}

func (s *stubClient) CheckAccessToken(ctx context.Context, token string) (string, string, error) {
	return "repo-1", "alice", nil
}
func (s *stubClient) CheckQuota(ctx context.Context, repoID string) error { return s.quotaErr }
func (s *stubClient) ListDir(ctx context.Context, repoID, parentDir string) ([]string, error) {
	return s.listNames, s.listErr
}
func (s *stubClient) PostFile(ctx context.Context, repoID, tmpPath, parentDir, name, user string) error {
	s.postedDir, s.postedName = parentDir, name
	return s.postErr
}
func (s *stubClient) PutFile(ctx context.Context, repoID, tmpPath, parentDir, name, user string) error {
	s.putDir, s.putName = parentDir, name
	return s.putErr
}

func newReceivedFSM(t *testing.T, parentDir, fileName, content string) *RecvFSM {
	t.Helper()
	const boundary = "B"
	body := buildMultipart(boundary, parentDir, fileName, content)
	fsm := NewRecvFSM(boundary, "repo-1", "alice", t.TempDir(), "p", NewProgress(int64(len(body))), 0)
	if err := fsm.Consume([]byte(body)); err != nil {
		t.Fatalf("consume: %v", err)
	}
	return fsm
}

func TestHandleUpload(t *testing.T) {
	Convey("HandleUpload", t, func() {
		Convey("redirects to the repo browse page on success", func() {
			fsm := newReceivedFSM(t, "/docs", "report.csv", "a,b,c")
			client := &stubClient{listNames: []string{"other.csv"}}

			outcome, err := HandleUpload(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			So(err, ShouldBeNil)
			So(outcome.RedirectURL, ShouldEqual, "https://seafhttp.example.com/repo/repo-1?p=%2Fdocs")
			So(client.postedDir, ShouldEqual, "/docs")
			So(client.postedName, ShouldEqual, "report.csv")
		})

		Convey("de-duplicates a colliding filename before posting", func() {
			fsm := newReceivedFSM(t, "/docs", "report.csv", "a,b,c")
			client := &stubClient{listNames: []string{"report.csv"}}

			_, err := HandleUpload(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			So(err, ShouldBeNil)
			So(client.postedName, ShouldEqual, "report (1).csv")
		})

		Convey("fails with BadRequest when parent_dir is missing", func() {
			fsm := NewRecvFSM("B", "repo-1", "alice", t.TempDir(), "p", NewProgress(0), 0)
			client := &stubClient{}
			_, err := HandleUpload(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			So(IsBadRequest(err), ShouldBeTrue)
		})

		Convey("redirects to the upload_error page carrying ERROR_QUOTA on quota failure", func() {
			fsm := newReceivedFSM(t, "/docs", "report.csv", "a,b,c")
			client := &stubClient{quotaErr: errTest}

			_, err := HandleUpload(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			url, ok := RedirectURL(err)
			So(ok, ShouldBeTrue)
			So(url, ShouldContainSubstring, "/repo/upload_error/repo-1")
			So(url, ShouldContainSubstring, "err=4")
		})

		Convey("maps \"file already exists\" to ERROR_EXISTS", func() {
			fsm := newReceivedFSM(t, "/docs", "report.csv", "a,b,c")
			client := &stubClient{listNames: []string{"report.csv"}, postErr: repoclient.ErrFileExists}

			_, err := HandleUpload(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			url, ok := RedirectURL(err)
			So(ok, ShouldBeTrue)
			So(url, ShouldContainSubstring, "err=1")
		})

		Convey("redirects to the upload_error page carrying ERROR_SIZE when the file exceeds maxUploadSize", func() {
			fsm := newReceivedFSM(t, "/docs", "report.csv", "this content is definitely longer than five bytes")
			client := &stubClient{}

			_, err := HandleUpload(context.Background(), client, fsm, "https://seafhttp.example.com", 5)
			url, ok := RedirectURL(err)
			So(ok, ShouldBeTrue)
			So(url, ShouldContainSubstring, "err=3")
		})

		Convey("redirects to the upload_error page carrying ERROR_RECV when no file part was received", func() {
			const boundary = "B"
			fieldOnlyBody := "--" + boundary + "\r\n" +
				`Content-Disposition: form-data; name="parent_dir"` + "\r\n" +
				"\r\n" +
				"/docs" + "\r\n" +
				"--" + boundary + "--\r\n"
			fsm := NewRecvFSM(boundary, "repo-1", "alice", t.TempDir(), "p", NewProgress(int64(len(fieldOnlyBody))), 0)
			if err := fsm.Consume([]byte(fieldOnlyBody)); err != nil {
				t.Fatalf("consume: %v", err)
			}
			So(fsm.HasSink(), ShouldBeFalse)
			client := &stubClient{}

			_, err := HandleUpload(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			url, ok := RedirectURL(err)
			So(ok, ShouldBeTrue)
			So(url, ShouldContainSubstring, "err=5")
		})
	})
}

func TestHandleUpdate(t *testing.T) {
	Convey("HandleUpdate", t, func() {
		Convey("redirects to the containing dir on success", func() {
			fsm := newReceivedFSM(t, "", "ignored", "new content")
			fsm.formKVs["target_file"] = "/docs/report.csv"
			client := &stubClient{}

			outcome, err := HandleUpdate(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			So(err, ShouldBeNil)
			So(outcome.RedirectURL, ShouldEqual, "https://seafhttp.example.com/repo/repo-1?p=%2Fdocs")
			So(client.putDir, ShouldEqual, "/docs")
			So(client.putName, ShouldEqual, "report.csv")
		})

		Convey("fails with BadRequest when target_file is missing", func() {
			fsm := NewRecvFSM("B", "repo-1", "alice", t.TempDir(), "p", NewProgress(0), 0)
			client := &stubClient{}
			_, err := HandleUpdate(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			So(IsBadRequest(err), ShouldBeTrue)
		})

		Convey("maps \"file does not exist\" to ERROR_NOT_EXIST", func() {
			fsm := newReceivedFSM(t, "", "ignored", "new content")
			fsm.formKVs["target_file"] = "/docs/missing.csv"
			client := &stubClient{putErr: repoclient.ErrFileNotExist}

			_, err := HandleUpdate(context.Background(), client, fsm, "https://seafhttp.example.com", 0)
			url, ok := RedirectURL(err)
			So(ok, ShouldBeTrue)
			So(url, ShouldContainSubstring, "err=2")
		})
	})
}
