// Package uri implements the URI and path primitives that every other
// package in vfscore addresses resources with.
//
// A URI identifies a resource inside exactly one provider: the scheme
// selects the provider, the path selects the resource within it. Unlike
// net/url, this package treats the path as a first-class sequence of
// segments so that parent/join/resolve operations never need to round-trip
// through string splitting at call sites.
package uri

import (
	"fmt"
	"strings"
)

// URI identifies a resource within a provider's scheme.
//
// Path is always stored in normalized form: a leading "/" for absolute
// paths, no trailing slash (except the root "/"), and no "." or ".."
// segments. Query and Fragment are carried verbatim and play no role in
// provider dispatch or equality.
type URI struct {
	Scheme    string
	Authority string
	Path      string
	Query     string
	Fragment  string
}

// Parse decodes a URI string of the form
// scheme://authority/path?query#fragment into its components.
//
// The scheme is required. Authority, query and fragment are optional.
// The path is normalized (see normalizePath) before being stored; a
// non-empty path without a leading "/" is kept relative (no leading "/").
func Parse(raw string) (URI, error) {
	schemeEnd := strings.Index(raw, ":")
	if schemeEnd <= 0 {
		return URI{}, fmt.Errorf("uri: %q has no scheme", raw)
	}
	u := URI{Scheme: raw[:schemeEnd]}
	rest := raw[schemeEnd+1:]

	if frag := strings.IndexByte(rest, '#'); frag >= 0 {
		u.Fragment = rest[frag+1:]
		rest = rest[:frag]
	}
	if q := strings.IndexByte(rest, '?'); q >= 0 {
		u.Query = rest[q+1:]
		rest = rest[:q]
	}

	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			u.Authority = rest[:slash]
			rest = rest[slash:]
		} else {
			u.Authority = rest
			rest = ""
		}
	}

	u.Path = normalizePath(rest)
	if rest != "" && !strings.HasPrefix(rest, "/") {
		// A path without a leading "/" stays relative so IsAbsolute reports it.
		u.Path = strings.TrimPrefix(u.Path, "/")
	}
	return u, nil
}

// MustParse is Parse but panics on error. Intended for literal URIs in
// tests and static provider configuration, never for untrusted input.
func MustParse(raw string) URI {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// String reassembles the URI into its canonical string form.
func (u URI) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteByte(':')
	if u.Authority != "" {
		b.WriteString("//")
		b.WriteString(u.Authority)
	}
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// IsAbsolute reports whether the path is rooted ("/...").
func (u URI) IsAbsolute() bool {
	return strings.HasPrefix(u.Path, "/")
}

// Segments splits the path into its non-empty components.
func (u URI) Segments() []string {
	return splitSegments(u.Path)
}

// Name returns the final path segment, or "" for the root.
func (u URI) Name() string {
	segs := u.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the URI one segment up. Parent of the root is the root.
func (u URI) Parent() URI {
	segs := u.Segments()
	if len(segs) == 0 {
		return u
	}
	p := u
	p.Path = "/" + strings.Join(segs[:len(segs)-1], "/")
	p.Query = ""
	p.Fragment = ""
	return p
}

// Join appends a single path segment (no "/" allowed in name).
func (u URI) Join(name string) URI {
	j := u
	if u.Path == "/" || u.Path == "" {
		j.Path = "/" + name
	} else {
		j.Path = u.Path + "/" + name
	}
	j.Path = normalizePath(j.Path)
	j.Query = ""
	j.Fragment = ""
	return j
}

// Resolve joins a (possibly multi-segment, possibly relative) path onto u,
// normalizing "." and ".." segments in the result.
func (u URI) Resolve(relPath string) URI {
	r := u
	if strings.HasPrefix(relPath, "/") {
		r.Path = normalizePath(relPath)
	} else {
		r.Path = normalizePath(u.Path + "/" + relPath)
	}
	r.Query = ""
	r.Fragment = ""
	return r
}

// Equal compares two URIs for equality. caseSensitive controls whether the
// scheme, authority and path are compared case-sensitively; this flag is
// owned by the provider registered for the scheme, not by the URI itself.
func (u URI) Equal(other URI, caseSensitive bool) bool {
	if caseSensitive {
		return u.Scheme == other.Scheme && u.Authority == other.Authority && u.Path == other.Path
	}
	return strings.EqualFold(u.Scheme, other.Scheme) &&
		strings.EqualFold(u.Authority, other.Authority) &&
		strings.EqualFold(u.Path, other.Path)
}

// IsEqualOrParent reports whether other is u itself or lies anywhere below
// u in the path hierarchy. Scheme and authority must match exactly
// regardless of caseSensitive (only path segments fold case).
func (u URI) IsEqualOrParent(other URI, caseSensitive bool) bool {
	if u.Scheme != other.Scheme || u.Authority != other.Authority {
		return false
	}
	up, op := u.Path, other.Path
	if !caseSensitive {
		up, op = strings.ToLower(up), strings.ToLower(op)
	}
	if up == op {
		return true
	}
	if up == "/" {
		return true
	}
	return strings.HasPrefix(op, up+"/")
}

func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// normalizePath collapses repeated slashes and resolves "." and ".."
// segments, always returning an absolute ("/"-rooted) path. A ".." at the
// root is dropped rather than erroring, matching the lenient behavior of
// path.Clean.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}
