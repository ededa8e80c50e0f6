package upload

import (
	"os"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// buildMultipart assembles a minimal multipart/form-data body with one
// plain field ("parent_dir") and one file field ("file"), terminated by
// the closing boundary.
func buildMultipart(boundary, parentDir, fileName, fileContent string) string {
	return "--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="parent_dir"` + "\r\n" +
		"\r\n" +
		parentDir + "\r\n" +
		"--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="file"; filename="` + fileName + `"` + "\r\n" +
		"\r\n" +
		fileContent + "\r\n" +
		"--" + boundary + "--\r\n"
}

func consumeInChunks(t *testing.T, fsm *RecvFSM, body string, chunkSize int) error {
	t.Helper()
	b := []byte(body)
	for i := 0; i < len(b); i += chunkSize {
		end := i + chunkSize
		if end > len(b) {
			end = len(b)
		}
		if err := fsm.Consume(b[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func TestRecvFSM(t *testing.T) {
	Convey("RecvFSM", t, func() {
		const boundary = "SeafBoundary123"
		body := buildMultipart(boundary, "/docs", "a.txt", "hello\r\nworld")
		tempDir := t.TempDir()

		Convey("parses fields and file content delivered in one chunk", func() {
			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-1", NewProgress(int64(len(body))), 0)
			err := fsm.Consume([]byte(body))
			So(err, ShouldBeNil)

			v, ok := fsm.FormValue("parent_dir")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "/docs")
			So(fsm.FileName(), ShouldEqual, "a.txt")
			So(fsm.HasSink(), ShouldBeTrue)

			content, err := os.ReadFile(fsm.SinkPath())
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, "hello\r\nworld")

			fsm.Release()
		})

		Convey("parses identically when delivered one byte at a time", func() {
			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-2", NewProgress(int64(len(body))), 0)
			err := consumeInChunks(t, fsm, body, 1)
			So(err, ShouldBeNil)

			content, err := os.ReadFile(fsm.SinkPath())
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, "hello\r\nworld")

			fsm.Release()
		})

		Convey("parses identically when chunk boundaries split the multipart boundary token", func() {
			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-3", NewProgress(int64(len(body))), 0)
			err := consumeInChunks(t, fsm, body, 7)
			So(err, ShouldBeNil)

			content, err := os.ReadFile(fsm.SinkPath())
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, "hello\r\nworld")

			fsm.Release()
		})

		Convey("rejects a body whose first line is not the boundary", func() {
			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-4", NewProgress(10), 0)
			err := fsm.Consume([]byte("not a boundary line\r\n"))
			So(err, ShouldNotBeNil)
			So(fsm.Failed(), ShouldBeTrue)
		})

		Convey("the last file part wins when two are submitted", func() {
			second := "--" + boundary + "\r\n" +
				`Content-Disposition: form-data; name="file"; filename="b.txt"` + "\r\n" +
				"\r\n" +
				"second content" + "\r\n" +
				"--" + boundary + "--\r\n"
			withoutClosing := buildMultipart(boundary, "/docs", "a.txt", "first content")
			combined := withoutClosing[:len(withoutClosing)-len(("--"+boundary+"--\r\n"))] + second

			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-5", NewProgress(int64(len(combined))), 0)
			err := fsm.Consume([]byte(combined))
			So(err, ShouldBeNil)
			So(fsm.FileName(), ShouldEqual, "b.txt")

			content, err := os.ReadFile(fsm.SinkPath())
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, "second content")

			fsm.Release()
		})

		Convey("Release unlinks the temp file and is idempotent", func() {
			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-6", NewProgress(int64(len(body))), 0)
			So(fsm.Consume([]byte(body)), ShouldBeNil)
			path := fsm.SinkPath()

			fsm.Release()
			_, err := os.Stat(path)
			So(os.IsNotExist(err), ShouldBeTrue)

			fsm.Release() // must not panic
		})

		Convey("flushes a file payload line once it reaches maxContentLine with no terminating CRLF", func() {
			const maxLine = 16
			longRun := strings.Repeat("x", 50)
			longBody := buildMultipart(boundary, "/docs", "big.bin", longRun)

			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-flush-1", NewProgress(int64(len(longBody))), maxLine)
			err := consumeInChunks(t, fsm, longBody, 5)
			So(err, ShouldBeNil)

			content, err := os.ReadFile(fsm.SinkPath())
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, longRun)

			fsm.Release()
		})

		Convey("preserves a file payload whose last byte before the boundary is a bare CR", func() {
			fileContent := "hello\r"
			crBody := buildMultipart(boundary, "/docs", "a.txt", fileContent)

			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-flush-2", NewProgress(int64(len(crBody))), 0)
			err := fsm.Consume([]byte(crBody))
			So(err, ShouldBeNil)

			content, err := os.ReadFile(fsm.SinkPath())
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, fileContent)

			fsm.Release()
		})

		Convey("does not mistake a boundary substring embedded in an unterminated binary run for the closing boundary", func() {
			const maxLine = 16
			raw := "AAAA--" + boundary + "BBBBBBBBBBBBBBBBBBBBBBBB"
			binBody := buildMultipart(boundary, "/docs", "blob.bin", raw)

			fsm := NewRecvFSM(boundary, "repo-1", "alice", tempDir, "p-flush-3", NewProgress(int64(len(binBody))), maxLine)
			err := consumeInChunks(t, fsm, binBody, 5)
			So(err, ShouldBeNil)
			So(fsm.Failed(), ShouldBeFalse)

			content, err := os.ReadFile(fsm.SinkPath())
			So(err, ShouldBeNil)
			So(string(content), ShouldEqual, raw)

			fsm.Release()
		})
	})
}
