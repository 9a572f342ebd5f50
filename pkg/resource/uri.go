// Package resource resolves resource node locations to local files, either
// directly for file URIs or through a download cache for remote ones.
package resource

import (
	"net/url"
	"strings"
	"unicode"
)

type Class uint8

const (
	Unclassified Class = iota
	Local
	Remote
)

func (c Class) String() string {
	switch c {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unclassified"
	}
}

const (
	SchemeFile  = "file"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFTP   = "ftp"
	SchemeSFTP  = "sftp"
)

// Classify maps a URI to its class by scheme alone. A nil URI or an unknown
// scheme is Unclassified.
func Classify(u *url.URL) Class {
	if u == nil {
		return Unclassified
	}
	switch strings.ToLower(u.Scheme) {
	case SchemeFile:
		return Local
	case SchemeHTTP, SchemeHTTPS, SchemeFTP, SchemeSFTP:
		return Remote
	default:
		return Unclassified
	}
}

func IsLocal(u *url.URL) bool {
	return Classify(u) == Local
}

func IsRemote(u *url.URL) bool {
	return Classify(u) == Remote
}

// LocalPath is the file system path of a file URI. An opaque URI such as
// "file:data.bin" yields its opaque part, relative to the working directory.
func LocalPath(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.Path != "" {
		return u.Path
	}
	return u.Opaque
}

// LocalCachePath derives the relative cache path of a remote URI: host, path
// and query, each sanitized and joined with "/" in that order. Distinct URIs
// can collide after sanitization; callers own that risk.
func LocalCachePath(u *url.URL) string {
	if u == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if host := u.Hostname(); host != "" {
		parts = append(parts, sanitize(host))
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		segs := strings.Split(p, "/")
		for i, s := range segs {
			segs[i] = sanitize(s)
		}
		parts = append(parts, strings.Join(segs, "/"))
	}
	if q := u.RawQuery; q != "" {
		if unescaped, err := url.QueryUnescape(q); err == nil {
			q = unescaped
		}
		parts = append(parts, sanitize(strings.ReplaceAll(q, "/", "_")))
	}
	return strings.Join(parts, "/")
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || r == '=' || r == '.' {
			return '_'
		}
		return r
	}, s)
}
