// ABOUTME: Transparent decompression of feed payloads by content sniffing
// ABOUTME: Detects ZIP and GZIP archives with h2non/filetype and unwraps the first entry

package feeds

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"
)

// sniffLen is the header size filetype needs to identify an archive.
const sniffLen = 262

// decompressIfNeeded returns a reader over the decompressed payload of r.
// Plain text passes through unchanged. ZIP archives are spooled to a
// temporary file, at most maxSize bytes, since zip needs random access.
// Decompressed output is bounded by maxSize as well.
func decompressIfNeeded(r io.Reader, maxSize int64) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	kind, _ := filetype.Match(head)
	switch kind.Extension {
	case "gz":
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip: %w", err)
		}
		return capDecompressed(gz, maxSize), nil
	case "zip":
		return openZIP(br, maxSize)
	default:
		return io.NopCloser(br), nil
	}
}

// capDecompressed bounds rc to maxSize bytes; maxSize <= 0 is unbounded.
func capDecompressed(rc io.ReadCloser, maxSize int64) io.ReadCloser {
	if maxSize <= 0 {
		return rc
	}
	return &limitedBody{Reader: newCappedReader(rc, maxSize), closer: rc}
}

// zipEntry closes the archive entry and removes its spool file.
type zipEntry struct {
	io.ReadCloser
	spool *os.File
}

func (z *zipEntry) Close() error {
	err := z.ReadCloser.Close()
	if cerr := z.spool.Close(); err == nil {
		err = cerr
	}
	if rerr := os.Remove(z.spool.Name()); err == nil {
		err = rerr
	}
	return err
}

// openZIP spools r to disk and opens the first regular file in the archive.
func openZIP(r io.Reader, maxSize int64) (io.ReadCloser, error) {
	spool, err := os.CreateTemp("", "warden-feed-*.zip")
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}
	cleanup := func() {
		spool.Close()
		os.Remove(spool.Name())
	}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	size, err := io.Copy(spool, src)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("spooling zip: %w", err)
	}
	if maxSize > 0 && size > maxSize {
		cleanup()
		return nil, fmt.Errorf("zip archive exceeds %d bytes", maxSize)
	}

	zr, err := zip.NewReader(spool, size)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("opening zip: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		return &zipEntry{ReadCloser: capDecompressed(rc, maxSize), spool: spool}, nil
	}

	cleanup()
	return nil, errors.New("zip archive contains no files")
}
