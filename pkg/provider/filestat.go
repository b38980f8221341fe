package provider

import (
	"fmt"
	"hash/fnv"

	"github.com/hollowfs/vfscore/pkg/uri"
)

// ETagDisabled is the sentinel that disables etag-based precondition
// checks on read and write.
const ETagDisabled = "disabled"

// FileStat is the metadata record for a file or directory entry.
type FileStat struct {
	Resource       uri.URI
	Name           string
	IsFile         bool
	IsDirectory    bool
	IsSymbolicLink bool
	Mtime          int64 // unix milliseconds
	Ctime          int64 // unix milliseconds
	Size           uint64
	Etag           string
	Children       []*FileStat
}

// ComputeETag derives the default etag by hashing (mtime, size) for
// providers that don't compute their own. Providers that compute their
// own etags (e.g. from a content hash or an object store's ETag header)
// bypass this entirely.
func ComputeETag(mtimeMS int64, size uint64) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d-%d", mtimeMS, size)
	return fmt.Sprintf("%x", h.Sum64())
}

// WithComputedETag returns a copy of st with Etag filled in from
// (Mtime, Size) when it is empty, leaving a provider-supplied etag intact.
func (st FileStat) WithComputedETag() FileStat {
	if st.Etag == "" {
		st.Etag = ComputeETag(st.Mtime, st.Size)
	}
	return st
}
