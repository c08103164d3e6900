// ABOUTME: Bloom filter wrapper over digests for fast negative lookups
// ABOUTME: One filter per store generation, persisted beside the database

package engine

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Default bloom filter sizing.
const (
	DefaultExpectedItems     = 1 << 22
	DefaultFalsePositiveRate = 0.001
)

// BloomConfig holds configuration for the Bloom filter.
type BloomConfig struct {
	// Expected number of items to be added.
	ExpectedItems uint `yaml:"expected_items" mapstructure:"expected_items"`

	// Desired false positive rate (e.g., 0.01 for 1%).
	FalsePositiveRate float64 `yaml:"false_positive_rate" mapstructure:"false_positive_rate"`
}

func (c BloomConfig) withDefaults() BloomConfig {
	if c.ExpectedItems == 0 {
		c.ExpectedItems = DefaultExpectedItems
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = DefaultFalsePositiveRate
	}
	return c
}

// BloomStats contains statistics about the Bloom filter.
type BloomStats struct {
	// Configured capacity.
	Capacity uint

	// Configured false positive rate.
	FalsePositiveRate float64

	// Size of the bit set in bytes.
	BitSetSize uint64

	// Number of hash functions used.
	HashFunctions uint

	// Estimated number of distinct items added.
	ApproximateItems uint32
}

// BloomFilter wraps a Bloom filter keyed by digest.
type BloomFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	config BloomConfig
}

// NewBloomFilter creates a new Bloom filter with the given configuration.
func NewBloomFilter(cfg BloomConfig) *BloomFilter {
	cfg = cfg.withDefaults()
	return &BloomFilter{
		filter: bloom.NewWithEstimates(cfg.ExpectedItems, cfg.FalsePositiveRate),
		config: cfg,
	}
}

// Add adds a digest to the filter.
func (bf *BloomFilter) Add(d types.Digest) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.Add([]byte(d))
}

// Test checks if a digest might be in the filter.
// Returns false if the digest is definitely not present.
func (bf *BloomFilter) Test(d types.Digest) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.Test([]byte(d))
}

// Stats returns statistics about the filter.
func (bf *BloomFilter) Stats() BloomStats {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	return BloomStats{
		Capacity:          bf.config.ExpectedItems,
		FalsePositiveRate: bf.config.FalsePositiveRate,
		BitSetSize:        uint64(bf.filter.Cap() / 8),
		HashFunctions:     bf.filter.K(),
		ApproximateItems:  bf.filter.ApproximatedSize(),
	}
}

// SaveToFile writes the filter to path via a temporary file and rename.
func (bf *BloomFilter) SaveToFile(path string) error {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bloom-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := bf.filter.WriteTo(w); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write filter: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write filter: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename filter file: %w", err)
	}
	return nil
}

// LoadBloomFilter loads a Bloom filter from a file.
func LoadBloomFilter(path string, cfg BloomConfig) (*BloomFilter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to read filter: %w", err)
	}

	return &BloomFilter{
		filter: f,
		config: cfg.withDefaults(),
	}, nil
}

// bloomPath returns the filter file for a generation under dir.
func bloomPath(dir string, gen uint64) string {
	return filepath.Join(dir, fmt.Sprintf("signatures-%d.bloom", gen))
}
