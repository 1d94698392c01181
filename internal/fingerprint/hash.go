package fingerprint

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheSize is the number of file hashes memoised per Fingerprinter
const DefaultCacheSize = 4096

type cacheKey struct {
	name  string
	mtime int64
	size  int64
}

// Fingerprinter computes signatures for existing files. It is safe for
// concurrent use. Content hashes are memoised by (path, mtime, size), so a
// header shared by many targets is read once per run.
type Fingerprinter struct {
	mode  Mode
	cache *lru.Cache[cacheKey, uint64]
}

// New creates a Fingerprinter. A cacheSize of zero uses DefaultCacheSize.
func New(mode Mode, cacheSize int) (*Fingerprinter, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[cacheKey, uint64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}

	return &Fingerprinter{
		mode:  mode,
		cache: cache,
	}, nil
}

// Mode returns the signature mode
func (f *Fingerprinter) Mode() Mode {
	return f.mode
}

// CreateExisting fingerprints a file that must exist now
func (f *Fingerprinter) CreateExisting(name string) (Path, error) {
	name = Normalize(name)

	info, err := os.Stat(name)
	if err != nil {
		return Path{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if info.IsDir() {
		return Path{}, fmt.Errorf("%w: %s is a directory", ErrNotFound, name)
	}

	if f.mode == ModeTimestamp {
		return Path{Name: name, Signature: uint64(info.ModTime().UnixNano())}, nil
	}

	key := cacheKey{name: name, mtime: info.ModTime().UnixNano(), size: info.Size()}
	if sig, ok := f.cache.Get(key); ok {
		return Path{Name: name, Signature: sig}, nil
	}

	sig, err := HashFile(name)
	if err != nil {
		return Path{}, err
	}

	f.cache.Add(key, sig)
	return Path{Name: name, Signature: sig}, nil
}

// CreateExistingAll fingerprints names concurrently
func (f *Fingerprinter) CreateExistingAll(names []string) (Set, error) {
	paths := make([]Path, len(names))

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())

	for i, name := range names {
		g.Go(func() error {
			p, err := f.CreateExisting(name)
			if err != nil {
				return err
			}

			paths[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewSet(paths...), nil
}

// HashFile returns the xxhash64 of a file's content
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("failed to hash file: %w", err)
	}

	return h.Sum64(), nil
}
