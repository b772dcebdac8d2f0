// Package signature produces and verifies versioned signature bundles for
// ledger entries.
//
// The ledger never calls a hash primitive directly. It asks a Provider for a
// bundle, and each bundle carries its version so verification can branch by
// version. That lets the active algorithm rotate without invalidating history.
package signature

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sync"

	"github.com/aretw0/authgate/pkg/domain"
)

var (
	// ErrUnsupportedVersion is returned for a bundle version the provider does not know.
	ErrUnsupportedVersion = errors.New("unsupported signature bundle version")

	// ErrAlgorithmUnavailable is returned when no algorithm of a bundle can be computed.
	ErrAlgorithmUnavailable = errors.New("signature algorithm unavailable")
)

// Algorithm names.
const (
	SHA256 = "sha256"
	SHA512 = "sha512"
)

// Bundle versions.
const (
	// V1 signs with sha256 only.
	V1 = 1
	// V2 signs with sha512 and carries a parallel sha256 digest.
	V2 = 2
)

// Scheme describes what a bundle version computes.
type Scheme struct {
	Primary  string
	Parallel string // Empty when the version has no parallel algorithm.
}

var schemes = map[int]Scheme{
	V1: {Primary: SHA256},
	V2: {Primary: SHA512, Parallel: SHA256},
}

// Signer is the capability the ledger depends on.
type Signer interface {
	Sign(payload []byte) (domain.SignatureBundle, error)
	Verify(payload []byte, bundle domain.SignatureBundle) (bool, error)
}

// Provider signs with one active version and verifies every known version.
type Provider struct {
	mu         sync.RWMutex
	version    int
	algorithms map[string]func() hash.Hash
}

// Option configures a Provider.
type Option func(*Provider)

// WithVersion selects the bundle version used by Sign.
func WithVersion(v int) Option {
	return func(p *Provider) {
		p.version = v
	}
}

// WithoutAlgorithm makes an algorithm unavailable, as on a host whose
// policy forbids it. Verification then falls back to the bundle's parallel digest.
func WithoutAlgorithm(name string) Option {
	return func(p *Provider) {
		delete(p.algorithms, name)
	}
}

// NewProvider creates a provider. The default version is V1.
func NewProvider(opts ...Option) (*Provider, error) {
	p := &Provider{
		version: V1,
		algorithms: map[string]func() hash.Hash{
			SHA256: sha256.New,
			SHA512: sha512.New,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.usable(p.version); err != nil {
		return nil, err
	}
	return p, nil
}

// usable reports whether every algorithm of version v can be computed.
func (p *Provider) usable(v int) error {
	scheme, ok := schemes[v]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	for _, name := range []string{scheme.Primary, scheme.Parallel} {
		if name == "" {
			continue
		}
		if _, ok := p.algorithms[name]; !ok {
			return fmt.Errorf("%w: version %d requires %s", ErrAlgorithmUnavailable, v, name)
		}
	}
	return nil
}

// Version returns the active bundle version.
func (p *Provider) Version() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Rotate switches the active version for future Sign calls.
func (p *Provider) Rotate(v int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.usable(v); err != nil {
		return err
	}
	p.version = v
	return nil
}

// Sign computes a bundle of the active version over payload.
func (p *Provider) Sign(payload []byte) (domain.SignatureBundle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	scheme := schemes[p.version]
	bundle := domain.SignatureBundle{
		Version:   p.version,
		Algorithm: scheme.Primary,
		Digest:    p.sum(scheme.Primary, payload),
	}
	if scheme.Parallel != "" {
		bundle.Parallel = &domain.ParallelDigest{
			Algorithm: scheme.Parallel,
			Digest:    p.sum(scheme.Parallel, payload),
		}
	}
	return bundle, nil
}

// Verify checks a bundle of any known version. The primary algorithm is
// tried first; the parallel digest decides only when the primary algorithm
// is unavailable. A parallel digest that is present and computable must
// agree as well, so every stored part of a bundle is covered.
func (p *Provider) Verify(payload []byte, bundle domain.SignatureBundle) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	scheme, ok := schemes[bundle.Version]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnsupportedVersion, bundle.Version)
	}
	if bundle.Algorithm != scheme.Primary {
		return false, nil
	}

	if _, ok := p.algorithms[scheme.Primary]; ok {
		if !equal(p.sum(scheme.Primary, payload), bundle.Digest) {
			return false, nil
		}
		if bundle.Parallel == nil {
			return scheme.Parallel == "", nil
		}
		if bundle.Parallel.Algorithm != scheme.Parallel {
			return false, nil
		}
		if _, ok := p.algorithms[scheme.Parallel]; ok {
			return equal(p.sum(scheme.Parallel, payload), bundle.Parallel.Digest), nil
		}
		return true, nil
	}

	if scheme.Parallel == "" || bundle.Parallel == nil {
		return false, fmt.Errorf("%w: %s for version %d", ErrAlgorithmUnavailable, scheme.Primary, bundle.Version)
	}
	if bundle.Parallel.Algorithm != scheme.Parallel {
		return false, nil
	}
	if _, ok := p.algorithms[scheme.Parallel]; !ok {
		return false, fmt.Errorf("%w: %s and %s for version %d", ErrAlgorithmUnavailable, scheme.Primary, scheme.Parallel, bundle.Version)
	}
	return equal(p.sum(scheme.Parallel, payload), bundle.Parallel.Digest), nil
}

func (p *Provider) sum(name string, payload []byte) string {
	h := p.algorithms[name]()
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
