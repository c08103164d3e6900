// ABOUTME: EICAR test signature source
// ABOUTME: Provides the standard EICAR test file digest for validating a deployment

package feeds

import (
	"context"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// EICAR test string (68 characters).
// This is the standard EICAR antivirus test file content.
// See: https://www.eicar.org/download-anti-malware-testfile/
const eicarTestString = "X5O!P%@AP[4\\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*"

// EICARDigest is the MD5 digest of the EICAR test string.
const EICARDigest types.Digest = "44d88612fea8a8f36de82e1278abb02f"

// EICARTestString returns the standard EICAR test string.
func EICARTestString() string {
	return eicarTestString
}

// EICARSource emits the single EICAR digest.
type EICARSource struct{}

// NewEICARSource creates an EICAR source.
func NewEICARSource() *EICARSource {
	return &EICARSource{}
}

// Name returns the name of the feed.
func (s *EICARSource) Name() string {
	return "eicar"
}

// Stream emits EICARDigest.
func (s *EICARSource) Stream(ctx context.Context, emit func(types.Digest) error, progress func(float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := emit(EICARDigest); err != nil {
		return err
	}
	report(progress, 1)
	return nil
}
