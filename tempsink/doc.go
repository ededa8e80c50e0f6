// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tempsink manages the single temp file backing one in-flight
// upload. It owns the output file descriptor and guarantees the file is
// unlinked when the Sink is closed, whether or not it was ever written.
//
// This is a narrower descendant of blitznote.com/src/caddy.upload/protofile's
// ProtoFileBehaver: a Sink never "emerges" under a final name. The file
// the back-end RPC reads is always the temp path; repository placement
// happens entirely on the RPC side.
package tempsink // import "github.com/seafhttp/upload/tempsink"
