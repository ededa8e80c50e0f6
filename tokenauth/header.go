package tokenauth // import "github.com/seafhttp/upload/tokenauth"

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"text/scanner"
	"time"

	"github.com/pkg/errors"
)

// Returned when parsing a malformed "Authorization" header.
var errAuthorizationNotSupported = errors.New("authorization scheme not supported")

// signatureHeader is the parsed form of an
//
//	Authorization: Signature keyId="…",algorithm="hmac-sha256",headers="timestamp token",signature="…"
//
// header, as checked by AuthenticateRequest.
type signatureHeader struct {
	KeyID         string
	Algorithm     string
	HeadersToSign []string
	Signature     []byte
}

// parse sets fields to anything found in str, the raw value of the
// "Authorization" header.
func (a *signatureHeader) parse(str string) error {
	var s scanner.Scanner
	s.Init(strings.NewReader(str))

	tok := s.Scan()
	if tok == scanner.EOF || s.TokenText() != "Signature" {
		return errAuthorizationNotSupported
	}

	for tok != scanner.EOF {
		tok = s.Scan()
		if tok != scanner.Ident {
			return errors.Errorf("unexpected token at %s", s.Pos())
		}
		ident := strings.ToLower(s.TokenText())

		tok = s.Scan()
		if !(tok == '=' || tok == ':') {
			return errors.Errorf("unexpected token at %s", s.Pos())
		}

		tok = s.Scan()
		if tok != scanner.String {
			return errors.Errorf("unexpected value (not in quotes?) at %s", s.Pos())
		}
		v, err := strconv.Unquote(s.TokenText())
		if err != nil {
			return errors.Errorf("unexpected value at %s", s.Pos())
		}

		switch ident {
		case "keyid":
			a.KeyID = v
		case "algorithm":
			a.Algorithm = v
		case "headers":
			if v != "" {
				a.HeadersToSign = strings.Split(v, " ")
			}
		case "signature":
			sig, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return errors.Wrap(err, "decoding signature")
			}
			a.Signature = sig
		}

		tok = s.Scan()
	}
	return nil
}

// checkFormal reports whether every header named in HeadersToSign is
// present, and any timestamp/date among them is within tolerance of now.
func (a *signatureHeader) checkFormal(headers http.Header, now, tolerance uint64) bool {
	for _, name := range a.HeadersToSign {
		v := headers.Get(name)
		if v == "" {
			return false
		}
		switch name {
		case "timestamp":
			ts, err := strconv.ParseUint(v, 10, 64)
			if err != nil || abs64(now, ts) > tolerance {
				return false
			}
		case "date":
			t, err := time.Parse(http.TimeFormat, v)
			if err != nil || abs64(now, uint64(t.Unix())) > tolerance {
				return false
			}
		}
	}
	return true
}
