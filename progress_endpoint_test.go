package upload

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestProgressEndpoint(t *testing.T) {
	Convey("ProgressEndpoint", t, func() {
		registry := NewProgressRegistry()
		p := NewProgress(1000)
		p.Add(250)
		So(registry.Insert("prog-1", p), ShouldBeNil)

		endpoint := NewProgressEndpoint(registry)

		Convey("replies with a JSONP payload for a known progress id", func() {
			req := httptest.NewRequest(http.MethodGet, "/upload_progress?X-Progress-ID=prog-1&callback=onProgress", nil)
			rec := httptest.NewRecorder()

			endpoint.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldEqual, `onProgress({"uploaded": 250, "length": 1000});`)
		})

		Convey("fails with BadRequest when X-Progress-ID is missing", func() {
			req := httptest.NewRequest(http.MethodGet, "/upload_progress?callback=onProgress", nil)
			rec := httptest.NewRecorder()

			endpoint.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("fails with BadRequest when callback is missing", func() {
			req := httptest.NewRequest(http.MethodGet, "/upload_progress?X-Progress-ID=prog-1", nil)
			rec := httptest.NewRecorder()

			endpoint.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("fails with BadRequest for an unknown progress id", func() {
			req := httptest.NewRequest(http.MethodGet, "/upload_progress?X-Progress-ID=nope&callback=onProgress", nil)
			rec := httptest.NewRecorder()

			endpoint.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
