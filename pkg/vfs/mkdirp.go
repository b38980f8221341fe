package vfs

import (
	"context"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// Mkdirp creates u and every missing ancestor directory, walking from the
// root down so each Mkdir call has an existing parent. It is a no-op if u
// already exists as a directory, and fails with FILE_NOT_A_DIRECTORY if an
// ancestor exists but is a file.
func (s *FileService) Mkdirp(ctx context.Context, u uri.URI) (result *provider.FileStat, err error) {
	if err := s.runBefore(ctx, OpCreate, u); err != nil {
		s.metrics.ObserveOperation("mkdirp", u.Scheme, err)
		return nil, err
	}
	defer func() { s.runAfter(ctx, OpCreate, u, err) }()

	p, werr := s.registry.WithProvider(ctx, u)
	if werr != nil {
		s.metrics.ObserveOperation("mkdirp", u.Scheme, werr)
		return nil, werr
	}
	if p.Capabilities().Has(capability.Readonly) {
		wrapped := vfserrors.New(vfserrors.FileReadOnly, "mkdirp", "").WithSource(u.String())
		s.metrics.ObserveOperation("mkdirp", u.Scheme, wrapped)
		return nil, wrapped
	}

	ancestors := ancestorChain(u)
	for _, anc := range ancestors {
		if err := s.mkdirOne(ctx, p, anc); err != nil {
			wrapped := vfserrors.Wrap(err, vfserrors.CodeOf(err), "mkdirp").WithSource(anc.String())
			s.metrics.ObserveOperation("mkdirp", u.Scheme, wrapped)
			return nil, wrapped
		}
	}

	stat, statErr := p.Stat(ctx, u)
	if statErr != nil {
		wrapped := vfserrors.Wrap(statErr, vfserrors.Unknown, "mkdirp").WithSource(u.String())
		s.metrics.ObserveOperation("mkdirp", u.Scheme, wrapped)
		return nil, wrapped
	}
	stat = stat.WithComputedETag()

	s.metrics.ObserveOperation("mkdirp", u.Scheme, nil)
	s.emitOperation(OperationEvent{Kind: OpCreate, Resource: u, Stat: &stat})
	return &stat, nil
}

// mkdirOne creates anc if it doesn't already exist, failing if it exists
// as a non-directory.
func (s *FileService) mkdirOne(ctx context.Context, p provider.Provider, anc uri.URI) error {
	st, err := p.Stat(ctx, anc)
	if err == nil {
		if !st.IsDirectory {
			return vfserrors.New(vfserrors.FileNotADirectory, "mkdirp", "").WithSource(anc.String())
		}
		return nil
	}
	if mkErr := p.Mkdir(ctx, anc); mkErr != nil {
		if st, statErr := p.Stat(ctx, anc); statErr == nil && st.IsDirectory {
			return nil
		}
		return mkErr
	}
	return nil
}

// ancestorChain returns u and every ancestor above it, root-first, so
// callers can create directories top-down.
func ancestorChain(u uri.URI) []uri.URI {
	var chain []uri.URI
	cur := u
	for len(cur.Segments()) > 0 {
		chain = append([]uri.URI{cur}, chain...)
		cur = cur.Parent()
	}
	return chain
}
