package naming

import (
	"net/url"
	"path"
	"strings"

	"github.com/wehubfusion/Hodos/pkg/locale"
)

// syntheticBase gives raw node names an authority so they parse as URLs.
const syntheticBase = "http://localhost"

// RawName derives a display name from a node's raw path alone: the query is
// dropped, "/" becomes the localized Home label, and anything else yields the
// last path segment without its extension. An empty path returns raw as is.
// The result may be empty, e.g. for a path with a trailing slash.
func RawName(raw string, tr locale.Translator) string {
	p := StripQuery(raw)
	if p == "" {
		return raw
	}
	if strings.EqualFold(p, "/") {
		return tr.Translate(locale.KeyHome)
	}
	file := p[strings.LastIndexAny(p, `/\`)+1:]
	return strings.TrimSuffix(file, path.Ext(file))
}

// LastSegment returns the last non-empty segment of raw parsed as a URL path,
// or "" when there is none. The segment keeps its percent-encoding.
func LastSegment(raw string) string {
	p := raw
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if u, err := url.Parse(syntheticBase + p); err == nil {
		p = u.EscapedPath()
	} else {
		p = StripQuery(p)
	}

	segments := strings.Split(p, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// StripQuery returns raw up to the first "?".
func StripQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
