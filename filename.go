package upload

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/seafhttp/upload/repoclient"
)

// AlwaysRejectedRunes contains characters that are unsafe to use in file
// names across common filesystems and network shares. A filename
// containing any of these is rejected by InAlphabet.
const AlwaysRejectedRunes = `"*:<>?|\`

const runeSpatium = ' ' // thin space: IsPrint excludes every space except U+0020, so allow this one explicitly

// excludedRunes collects Unicode ranges not suitable for filenames:
// line/paragraph separators and the specials block (including the
// obsolete invalid terminal box-drawing codepoints).
var excludedRunes = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2028, Hi: 0x202f, Stride: 1},
		{Lo: 0xfff0, Hi: 0xffff, Stride: 1},
	},
}

// InAlphabet reports whether s consists exclusively of printable runes
// acceptable in a filename: no control characters, no characters from
// AlwaysRejectedRunes, and — if alphabet is non-nil — no rune outside it.
// Whitespace other than U+0020 and U+2009 is always rejected.
//
// This is an optional, stricter policy a deployment can layer on top of
// the mandatory de-duplication in GenUniqueFilename; spec.md itself does
// not require it.
func InAlphabet(s string, alphabet []*unicode.RangeTable) bool {
	if alphabet != nil {
		for _, r := range s {
			if !unicode.In(r, alphabet...) {
				return false
			}
		}
	}

	for _, r := range s {
		if uint32(r) <= unicode.MaxLatin1 && strings.ContainsRune(AlwaysRejectedRunes, r) {
			return false
		}
		if r == runeSpatium {
			continue
		}
		if unicode.Is(excludedRunes, r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// IsNormalizedForm reports whether s is already in Unicode normalization
// form form, e.g. norm.NFC. A deployment that wants to reject filenames
// built from combining-character sequences can call this ahead of
// GenUniqueFilename; it mirrors the teacher's UnicodeForm field, which
// rejected any upload whose filename wasn't already in the configured form.
func IsNormalizedForm(s string, form norm.Form) bool {
	return form.IsNormalString(s)
}

// maxUniqueNameAttempts bounds the collision-avoidance loop in
// GenUniqueFilename. Preserved verbatim from spec.md/upstream: on the
// 16th attempt the candidate is used regardless of whether it still
// collides, leaving the back end to reject it with ErrorExists.
const maxUniqueNameAttempts = 16

// GenUniqueFilename consults parentDir's current listing in repoID and
// returns a name that does not collide with any existing entry, trying
// "name (1).ext", "name (2).ext", … up to maxUniqueNameAttempts, after
// which the last candidate is returned even if it still collides.
func GenUniqueFilename(ctx context.Context, client repoclient.Client, repoID, parentDir, filename string) (string, error) {
	existing, err := client.ListDir(ctx, repoID, parentDir)
	if err != nil {
		return "", err
	}

	taken := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		taken[name] = struct{}{}
	}

	if _, collides := taken[filename]; !collides {
		return filename, nil
	}

	base, ext := splitExt(filename)
	var candidate string
	for i := 1; i <= maxUniqueNameAttempts; i++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, collides := taken[candidate]; !collides {
			return candidate, nil
		}
	}
	return candidate, nil
}

// splitExt splits filename into its stem and its extension (the suffix
// after the last "."), the extension including the leading dot. A
// filename with no "." has an empty extension.
func splitExt(filename string) (stem, ext string) {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return filename, ""
	}
	return filename[:idx], filename[idx:]
}
