package upload

import (
	"strings"

	"github.com/pkg/errors"
)

// ExtractBoundary returns the boundary parameter carried in a
// "Content-Type: multipart/form-data; boundary=<v>" header value.
//
// It splits on ";", trims each segment, and requires the first segment to
// case-insensitively equal "multipart/form-data" and a later segment to
// match "boundary=<value>". The value is returned verbatim, without its
// leading "--": callers match it against body lines with a substring test.
func ExtractBoundary(contentType string) (string, error) {
	segments := strings.Split(contentType, ";")
	if len(segments) == 0 {
		return "", errors.New("empty Content-Type")
	}
	if !strings.EqualFold(strings.TrimSpace(segments[0]), "multipart/form-data") {
		return "", errors.New("Content-Type is not multipart/form-data")
	}

	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if idx := strings.IndexByte(seg, '='); idx >= 0 {
			key := strings.TrimSpace(seg[:idx])
			if strings.EqualFold(key, "boundary") {
				return seg[idx+1:], nil
			}
		}
	}
	return "", errors.New("no boundary parameter in Content-Type")
}

// extractQuoted finds the first and last '"' in s and returns what's
// between them. It fails if there are fewer than two quotes, or if the
// first and last coincide.
func extractQuoted(s string) (string, bool) {
	first := strings.IndexByte(s, '"')
	if first < 0 {
		return "", false
	}
	last := strings.LastIndexByte(s, '"')
	if last <= first {
		return "", false
	}
	return s[first+1 : last], true
}

// parsePartHeader parses one MIME header line of a part ("Name: params")
// and, if Name is Content-Disposition, updates fsm.inputName (and
// fsm.fileName, for the file part) from its parameters. Any other header
// name is ignored.
func (fsm *RecvFSM) parsePartHeader(line []byte) error {
	s := string(line)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return errors.Errorf("malformed part header: %q", s)
	}
	name := strings.TrimSpace(s[:idx])
	if !strings.EqualFold(name, "Content-Disposition") {
		return nil
	}

	params := strings.Split(s[idx+1:], ";")
	if len(params) == 0 {
		return errors.New("empty Content-Disposition")
	}
	if !strings.EqualFold(strings.TrimSpace(params[0]), "form-data") {
		return errors.Errorf("Content-Disposition is not form-data: %q", s)
	}

	var fieldName string
	var haveName bool
	var fileName string
	var haveFileName bool

	for _, p := range params[1:] {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(strings.ToLower(p), "name="):
			v, ok := extractQuoted(p)
			if !ok {
				return errors.Errorf("malformed name parameter: %q", p)
			}
			fieldName = v
			haveName = true
		case strings.HasPrefix(strings.ToLower(p), "filename="):
			v, ok := extractQuoted(p)
			if !ok {
				return errors.Errorf("malformed filename parameter: %q", p)
			}
			fileName = v
			haveFileName = true
		}
	}

	if !haveName {
		return errors.New("Content-Disposition is missing a name parameter")
	}

	fsm.inputName = fieldName
	if fieldName == "file" {
		if !haveFileName {
			return errors.New("file part is missing a filename parameter")
		}
		fsm.fileName = fileName
	}
	return nil
}
