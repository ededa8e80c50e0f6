// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package repoclient is the back-end RPC surface the upload endpoint
// consumes: access-token resolution, quota checks, the actual file
// ingest calls, and directory listing for filename de-duplication.
//
// The repository itself — object storage, commit history, filesystem
// model — is out of scope for the HTTP receiver (see spec §1); this
// package only describes the calls it makes across that boundary. The
// HTTP+JSON implementation's route shapes are grounded on the seafile
// server API as exercised by rclone's seafile backend mock server.
package repoclient // import "github.com/seafhttp/upload/repoclient"
