package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// RegistrationEvent is fired on register/unregister.
type RegistrationEvent struct {
	Added    bool
	Scheme   string
	Provider Provider
}

// CapabilityChangeEvent is fired when a registered provider's capabilities
// change, or when a provider is registered/unregistered (which is itself a
// capability transition from "absent" to "present" or back).
type CapabilityChangeEvent struct {
	Scheme       string
	Capabilities capability.Bits
}

// ActivationEvent is delivered to onWillActivate listeners.
// A listener that needs to do async work before its provider becomes
// available calls Join with a function; Activate waits for every joined
// function to return before resolving.
type ActivationEvent struct {
	Scheme string
	Join   func(fn func(ctx context.Context) error)
}

// Registry maps URI schemes to the Provider responsible for them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	unsub     map[string]Disposable

	registrations *Emitter[RegistrationEvent]
	capChanges    *Emitter[CapabilityChangeEvent]
	willActivate  *Emitter[ActivationEvent]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers:     make(map[string]Provider),
		unsub:         make(map[string]Disposable),
		registrations: NewEmitter[RegistrationEvent](),
		capChanges:    NewEmitter[CapabilityChangeEvent](),
		willActivate:  NewEmitter[ActivationEvent](),
	}
}

// OnDidChangeRegistrations subscribes to register/unregister events.
func (r *Registry) OnDidChangeRegistrations(f func(RegistrationEvent)) Disposable {
	return r.registrations.Subscribe(f)
}

// OnDidChangeCapabilities subscribes to capability-change events, both
// from registration transitions and from a provider's own
// OnDidChangeCapabilities stream.
func (r *Registry) OnDidChangeCapabilities(f func(CapabilityChangeEvent)) Disposable {
	return r.capChanges.Subscribe(f)
}

// OnWillActivate subscribes to the activation hook used by lazy providers
// to register themselves on first use.
func (r *Registry) OnWillActivate(f func(ActivationEvent)) Disposable {
	return r.willActivate.Subscribe(f)
}

// Register binds p to scheme. Fails with AlreadyRegistered-shaped error if
// scheme already has a provider. The returned Disposable unregisters p.
func (r *Registry) Register(scheme string, p Provider) (Disposable, error) {
	r.mu.Lock()
	if _, exists := r.providers[scheme]; exists {
		r.mu.Unlock()
		return nil, vfserrors.New(vfserrors.FileExists, "register", fmt.Sprintf("provider already registered for scheme %q", scheme))
	}
	r.providers[scheme] = p
	r.unsub[scheme] = p.OnDidChangeCapabilities(func(bits capability.Bits) {
		r.capChanges.Fire(CapabilityChangeEvent{Scheme: scheme, Capabilities: bits})
	})
	r.mu.Unlock()

	logger.Info("provider registered for scheme %q", scheme)
	r.registrations.Fire(RegistrationEvent{Added: true, Scheme: scheme, Provider: p})
	r.capChanges.Fire(CapabilityChangeEvent{Scheme: scheme, Capabilities: p.Capabilities()})

	var once sync.Once
	return DisposableFunc(func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.providers, scheme)
			if unsub, ok := r.unsub[scheme]; ok {
				unsub.Dispose()
				delete(r.unsub, scheme)
			}
			r.mu.Unlock()
			logger.Info("provider unregistered for scheme %q", scheme)
			r.registrations.Fire(RegistrationEvent{Added: false, Scheme: scheme, Provider: p})
			r.capChanges.Fire(CapabilityChangeEvent{Scheme: scheme, Capabilities: 0})
		})
	}), nil
}

// Activate resolves scheme's provider, running onWillActivate listeners and
// waiting for every future they Join before returning, if the provider is
// not already present. Returns immediately if it is.
func (r *Registry) Activate(ctx context.Context, scheme string) error {
	r.mu.RLock()
	_, exists := r.providers[scheme]
	r.mu.RUnlock()
	if exists {
		return nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	ev := ActivationEvent{
		Scheme: scheme,
		Join: func(fn func(ctx context.Context) error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(ctx); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}()
		},
	}
	r.willActivate.Fire(ev)
	wg.Wait()
	return firstErr
}

// WithProvider resolves u's scheme to a Provider, activating it if
// necessary. Fails with FileInvalidPath if u's path is not absolute, or
// NoProvider if no provider is registered after activation.
func (r *Registry) WithProvider(ctx context.Context, u uri.URI) (Provider, error) {
	if !u.IsAbsolute() {
		return nil, vfserrors.New(vfserrors.FileInvalidPath, "withProvider", u.String())
	}
	if err := r.Activate(ctx, u.Scheme); err != nil {
		return nil, err
	}
	r.mu.RLock()
	p, exists := r.providers[u.Scheme]
	r.mu.RUnlock()
	if !exists {
		return nil, vfserrors.New(vfserrors.NoProvider, "withProvider", u.String())
	}
	return p, nil
}

// Lookup returns the provider for scheme without activating it, or false
// if none is registered. Used by code paths that must not trigger lazy
// activation (e.g. queueKey folding, which only needs case sensitivity).
func (r *Registry) Lookup(scheme string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[scheme]
	return p, ok
}

// HasCapability reports whether scheme's provider, if present, carries cap.
// Returns false (not an error) when no provider is registered.
func (r *Registry) HasCapability(u uri.URI, cap capability.Bits) bool {
	p, ok := r.Lookup(u.Scheme)
	if !ok {
		return false
	}
	return p.Capabilities().Has(cap)
}
