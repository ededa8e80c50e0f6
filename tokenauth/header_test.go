package tokenauth // import "github.com/seafhttp/upload/tokenauth"

import (
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSignatureHeaderParse(t *testing.T) {
	Convey("signatureHeader.parse", t, func() {
		Convey("parses a well-formed header", func() {
			var a signatureHeader
			err := a.parse(`Signature keyId="key-1",algorithm="hmac-sha256",headers="timestamp token",signature="c2lnbmF0dXJl"`)
			So(err, ShouldBeNil)
			So(a.KeyID, ShouldEqual, "key-1")
			So(a.Algorithm, ShouldEqual, "hmac-sha256")
			So(a.HeadersToSign, ShouldResemble, []string{"timestamp", "token"})
			So(string(a.Signature), ShouldEqual, "signature")
		})

		Convey("rejects a header not using the Signature scheme", func() {
			var a signatureHeader
			err := a.parse(`Basic dXNlcjpwYXNz`)
			So(err, ShouldEqual, errAuthorizationNotSupported)
		})

		Convey("rejects a malformed parameter list", func() {
			var a signatureHeader
			err := a.parse(`Signature keyId=`)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSignatureHeaderCheckFormal(t *testing.T) {
	Convey("checkFormal", t, func() {
		a := signatureHeader{HeadersToSign: []string{"timestamp", "token"}}

		Convey("passes when timestamp is within tolerance", func() {
			h := http.Header{}
			h.Set("Timestamp", "1000")
			h.Set("Token", "streng")
			So(a.checkFormal(h, 1002, 4), ShouldBeTrue)
		})

		Convey("fails when timestamp drifts beyond tolerance", func() {
			h := http.Header{}
			h.Set("Timestamp", "1000")
			h.Set("Token", "streng")
			So(a.checkFormal(h, 2000, 4), ShouldBeFalse)
		})

		Convey("fails when a required header is missing", func() {
			h := http.Header{}
			h.Set("Timestamp", "1000")
			So(a.checkFormal(h, 1000, 4), ShouldBeFalse)
		})
	})
}
