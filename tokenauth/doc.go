// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tokenauth implements check_access_token: resolving the opaque
// token carried in the final path segment of /upload/<token> and
// /update/<token> to a (repoID, user) pair.
//
// Two resolvers are provided. StaticTokens is a plain map, useful for
// tests and for operators who mint tokens out-of-band (e.g. the
// repository's own web UI hands one out before redirecting the browser
// to the upload form). SignedTokens decodes a self-contained,
// HMAC-SHA256-authenticated token (a JSON payload with an optional
// expiry, compared in constant time) without any registry lookup at all.
//
// AuthenticateRequest separately verifies the "Authorization: Signature"
// request header of blitznote.com/src/caddy.upload/signature.auth (keyID,
// algorithm, timestamp tolerance, constant-time HMAC compare).
package tokenauth // import "github.com/seafhttp/upload/tokenauth"
