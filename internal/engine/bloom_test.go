// ABOUTME: Tests for the digest Bloom filter wrapper
// ABOUTME: Covers add, test, persistence, defaults, and concurrent access

package engine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

const eicarMD5 = types.Digest("44d88612fea8a8f36de82e1278abb02f")

func TestBloomFilter_AddAndTest(t *testing.T) {
	t.Parallel()

	bf := NewBloomFilter(BloomConfig{ExpectedItems: 1000, FalsePositiveRate: 0.01})

	if bf.Test(eicarMD5) {
		t.Error("Test() should return false for unadded digest")
	}

	bf.Add(eicarMD5)

	if !bf.Test(eicarMD5) {
		t.Error("Test() should return true for added digest")
	}
}

func TestBloomFilter_Defaults(t *testing.T) {
	t.Parallel()

	bf := NewBloomFilter(BloomConfig{})
	stats := bf.Stats()

	if stats.Capacity != DefaultExpectedItems {
		t.Errorf("Capacity = %d, want %d", stats.Capacity, DefaultExpectedItems)
	}
	if stats.FalsePositiveRate != DefaultFalsePositiveRate {
		t.Errorf("FalsePositiveRate = %v, want %v", stats.FalsePositiveRate, DefaultFalsePositiveRate)
	}
	if stats.BitSetSize == 0 || stats.HashFunctions == 0 {
		t.Errorf("Stats() = %+v, want non-zero bit set and hash functions", stats)
	}
}

func TestBloomFilter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	bf := NewBloomFilter(BloomConfig{ExpectedItems: 10000, FalsePositiveRate: 0.01})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				d := types.DigestFromSum([]byte{byte(w), byte(i), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
				bf.Add(d)
				if !bf.Test(d) {
					t.Errorf("Test() false right after Add()")
				}
			}
		}(w)
	}

	wg.Wait()
}

func TestBloomFilter_Persistence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "signatures-1.bloom")

	bf := NewBloomFilter(BloomConfig{ExpectedItems: 1000, FalsePositiveRate: 0.01})
	digests := []types.Digest{
		eicarMD5,
		"7dea362b3fac8e00956a4952a3d4f474",
		"81051bcc2cf1bedf378224b0a93e2877",
	}
	for _, d := range digests {
		bf.Add(d)
	}

	if err := bf.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File should exist: %v", err)
	}

	loaded, err := LoadBloomFilter(path, BloomConfig{})
	if err != nil {
		t.Fatalf("LoadBloomFilter() error: %v", err)
	}
	for _, d := range digests {
		if !loaded.Test(d) {
			t.Errorf("Loaded filter should contain %s", d)
		}
	}

	// No temporary files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestLoadBloomFilter_Missing(t *testing.T) {
	t.Parallel()

	if _, err := LoadBloomFilter(filepath.Join(t.TempDir(), "absent.bloom"), BloomConfig{}); err == nil {
		t.Error("LoadBloomFilter() should fail for a missing file")
	}
}
