// ABOUTME: Parser for plain-text MD5 hash lists
// ABOUTME: Skips comments and blank lines, counts malformed entries without failing

package feeds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// ParseHashList reads one digest per line from r and passes each to emit.
// Lines starting with '#' and blank lines are skipped. Only the first
// field of a line is considered, so "digest  filename" lines are accepted.
func ParseHashList(ctx context.Context, r io.Reader, emit func(types.Digest) error) (ParseStats, error) {
	var stats ParseStats

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		stats.Lines++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		field := line
		if i := strings.IndexAny(line, " \t,;"); i >= 0 {
			field = line[:i]
		}

		digest, err := types.ParseDigest(strings.Trim(field, `"`))
		if err != nil {
			stats.Invalid++
			continue
		}

		if err := emit(digest); err != nil {
			return stats, fmt.Errorf("emitting digest at line %d: %w", stats.Lines, err)
		}
		stats.Digests++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scanning data: %w", err)
	}

	return stats, nil
}
