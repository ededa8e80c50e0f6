// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package upload implements the streaming multipart receiver for a
// content-addressed file repository's HTTP upload endpoint.
//
// Browsers POST multipart/form-data to /upload/<token> or /update/<token>;
// this package parses the body incrementally, never buffering it whole,
// streams the file part to a temporary file, and makes upload progress
// available to a concurrently polled /upload_progress endpoint.
//
// The heavy lifting happens in RecvFSM, which is driven one body chunk at
// a time by RequestLifecycle. Access tokens are resolved through a
// tokenauth.Resolver; everything else that talks to the actual
// repository — quota checks, directory listing, the ingest RPC itself —
// is reached through the Client interface in package repoclient, so this
// package stays ignorant of wire formats other than HTTP multipart.
package upload // import "github.com/seafhttp/upload"
