// Package preview keeps locally selected images behind opaque references until
// they are released.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/persondetect/detect-console/internal/cache"
)

const refScheme = "preview://"

// ErrUnknownRef is returned for references that were never created or already released.
var ErrUnknownRef = errors.New("unknown preview reference")

// Info describes one live preview.
type Info struct {
	Ref         string
	Name        string
	Size        int
	ContentType string
}

// Store issues preview references backed by a cache.Provider.
type Store struct {
	provider cache.Provider
	ttl      time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	live map[string]Info
}

// NewStore constructs a Store. A nil provider uses an in-memory one. A positive ttl
// bounds how long the bytes of an unreleased preview are kept.
func NewStore(provider cache.Provider, ttl time.Duration, logger *slog.Logger) *Store {
	if provider == nil {
		provider = cache.NewMemoryProvider()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{provider: provider, ttl: ttl, logger: logger, live: make(map[string]Info)}
}

// Create stores a copy of data and returns a new reference to it.
func (s *Store) Create(ctx context.Context, name string, data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, errors.New("preview: empty image data")
	}
	info := Info{
		Ref:         refScheme + uuid.NewString() + "/" + filepath.Base(name),
		Name:        filepath.Base(name),
		Size:        len(data),
		ContentType: http.DetectContentType(data),
	}
	if err := s.provider.Set(ctx, cacheKey(info.Ref), data, s.ttl); err != nil {
		return Info{}, fmt.Errorf("preview: store %s: %w", info.Name, err)
	}

	s.mu.Lock()
	s.live[info.Ref] = info
	s.mu.Unlock()
	s.logger.Debug("preview created", slog.String("ref", info.Ref), slog.Int("bytes", info.Size))
	return info, nil
}

// Open returns the bytes behind ref.
func (s *Store) Open(ctx context.Context, ref string) ([]byte, error) {
	if _, ok := s.Lookup(ref); !ok {
		return nil, fmt.Errorf("preview: %w: %s", ErrUnknownRef, ref)
	}
	data, err := s.provider.Get(ctx, cacheKey(ref))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("preview: %w: %s", ErrUnknownRef, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("preview: open %s: %w", ref, err)
	}
	return data, nil
}

// Lookup reports the metadata of a live reference.
func (s *Store) Lookup(ref string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.live[ref]
	return info, ok
}

// Release frees ref. Releasing an empty or already released reference is a no-op.
func (s *Store) Release(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	s.mu.Lock()
	_, ok := s.live[ref]
	delete(s.live, ref)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.provider.Del(ctx, cacheKey(ref)); err != nil {
		return fmt.Errorf("preview: release %s: %w", ref, err)
	}
	s.logger.Debug("preview released", slog.String("ref", ref))
	return nil
}

// Count returns the number of live references.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close releases every live reference and closes the provider.
func (s *Store) Close() error {
	s.mu.Lock()
	refs := make([]string, 0, len(s.live))
	for ref := range s.live {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	var errs []error
	for _, ref := range refs {
		if err := s.Release(context.Background(), ref); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsRef reports whether value looks like a preview reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, refScheme)
}

func cacheKey(ref string) string {
	return "preview:" + strings.TrimPrefix(ref, refScheme)
}
