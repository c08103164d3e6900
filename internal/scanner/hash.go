// ABOUTME: Streaming MD5 hashing of file contents in fixed-size chunks
// ABOUTME: Reports empty files so callers can skip them instead of matching

package scanner

import (
	"crypto/md5"
	"errors"
	"io"
	"os"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// hashFile digests path using buf for reads. It returns false when the
// first read yields no bytes.
func hashFile(path string, buf []byte) (types.Digest, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	h := md5.New()
	var consumed int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			consumed += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", false, err
		}
	}

	if consumed == 0 {
		return "", false, nil
	}
	return types.DigestFromSum(h.Sum(nil)), true, nil
}
