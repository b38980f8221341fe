package vfs

import (
	"context"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// DeleteOptions controls delete.
type DeleteOptions struct {
	Recursive bool
	UseTrash  bool
}

// Delete removes u. A non-empty directory requires Recursive, and UseTrash
// requires the provider's Trash capability.
func (s *FileService) Delete(ctx context.Context, u uri.URI, opts DeleteOptions) (err error) {
	if err := s.runBefore(ctx, OpDelete, u); err != nil {
		s.metrics.ObserveOperation("delete", u.Scheme, err)
		return err
	}
	defer func() { s.runAfter(ctx, OpDelete, u, err) }()

	p, werr := s.registry.WithProvider(ctx, u)
	if werr != nil {
		s.metrics.ObserveOperation("delete", u.Scheme, werr)
		return werr
	}
	if p.Capabilities().Has(capability.Readonly) {
		wrapped := vfserrors.New(vfserrors.FileReadOnly, "delete", "").WithSource(u.String())
		s.metrics.ObserveOperation("delete", u.Scheme, wrapped)
		return wrapped
	}
	if opts.UseTrash && !p.Capabilities().Has(capability.Trash) {
		wrapped := vfserrors.New(vfserrors.Unknown, "delete", "provider does not support trash").WithSource(u.String())
		s.metrics.ObserveOperation("delete", u.Scheme, wrapped)
		return wrapped
	}

	st, statErr := p.Stat(ctx, u)
	if statErr != nil {
		wrapped := vfserrors.Wrap(statErr, vfserrors.FileNotFound, "delete").WithSource(u.String())
		s.metrics.ObserveOperation("delete", u.Scheme, wrapped)
		return wrapped
	}
	if st.IsDirectory && !opts.Recursive {
		entries, rdErr := p.ReadDir(ctx, u)
		if rdErr == nil && len(entries) > 0 {
			wrapped := vfserrors.New(vfserrors.FileExists, "delete", "directory is not empty").WithSource(u.String())
			s.metrics.ObserveOperation("delete", u.Scheme, wrapped)
			return wrapped
		}
	}

	key := queueKey(p, u)
	qErr := s.queue.enqueue(ctx, key, func(ctx context.Context) error {
		return p.Delete(ctx, u, provider.DeleteOptions{Recursive: opts.Recursive, UseTrash: opts.UseTrash})
	})
	if qErr != nil {
		wrapped := vfserrors.Wrap(qErr, vfserrors.Unknown, "delete").WithSource(u.String())
		s.metrics.ObserveOperation("delete", u.Scheme, wrapped)
		return wrapped
	}

	s.metrics.ObserveOperation("delete", u.Scheme, nil)
	s.emitOperation(OperationEvent{Kind: OpDelete, Resource: u})
	return nil
}
