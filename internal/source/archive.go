package source

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ArchiveExt is the file extension for offline archives: zstd-compressed
// JSON lines, one payload per line, oldest first.
const ArchiveExt = ".evtz"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Archive is an offline event archive opened from disk. It serves a
// single channel named after the file. Safe for concurrent queries: each
// cursor holds its own file handle.
type Archive struct {
	path string
	name string
}

// OpenArchive validates and opens an archive file. The file is only
// checked here; each query streams it independently.
func OpenArchive(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	magic := make([]byte, len(zstdMagic))
	if _, err := f.Read(magic); err != nil || !bytes.Equal(magic, zstdMagic) {
		return nil, fmt.Errorf("open archive %s: not a compressed archive", path)
	}

	return &Archive{path: path, name: archiveName(path)}, nil
}

func archiveName(path string) string {
	base := path
	if i := bytes.LastIndexAny([]byte(path), `/\`); i >= 0 {
		base = path[i+1:]
	}
	if len(base) > len(ArchiveExt) && base[len(base)-len(ArchiveExt):] == ArchiveExt {
		base = base[:len(base)-len(ArchiveExt)]
	}
	return base
}

// Name is the channel name the archive presents itself as.
func (a *Archive) Name() string { return a.name }

// Channels implements Catalog.
func (a *Archive) Channels() ([]string, error) {
	return []string{a.name}, nil
}

// Query implements Querier. Time predicates are applied archive-side
// while scanning, so out-of-window lines never reach the reader.
func (a *Archive) Query(channel string, pred Predicate) (Cursor, error) {
	if channel != a.name {
		return nil, fmt.Errorf("archive %s has no channel %q", a.path, channel)
	}
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open archive stream: %w", err)
	}

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &archiveCursor{file: f, dec: dec, scanner: sc, pred: pred}, nil
}

type archiveCursor struct {
	file    *os.File
	dec     *zstd.Decoder
	scanner *bufio.Scanner
	pred    Predicate
	done    bool
}

type archiveHandle []byte

// Next implements Cursor. Archive scans never block, so wait is unused.
func (c *archiveCursor) Next(max int, _ time.Duration) ([]Handle, error) {
	if c.done {
		return nil, ErrNoMoreItems
	}
	handles := make([]Handle, 0, max)
	for len(handles) < max && c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !c.pred.Unbounded() {
			if ts, ok := ExtractTimestamp(line); ok && !c.pred.Contains(ts) {
				continue
			}
		}
		// Scanner reuses its buffer; handles must own their bytes.
		h := make(archiveHandle, len(line))
		copy(h, line)
		handles = append(handles, h)
	}
	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}
	if len(handles) == 0 {
		c.done = true
		return nil, ErrNoMoreItems
	}
	return handles, nil
}

func (c *archiveCursor) Close() error {
	c.dec.Close()
	return c.file.Close()
}

// ArchiveRenderer renders archive handles by copying the stored payload
// line into the caller's buffer.
type ArchiveRenderer struct{}

// Render implements Renderer.
func (ArchiveRenderer) Render(h Handle, buf []byte) (int, error) {
	line, ok := h.(archiveHandle)
	if !ok {
		return 0, fmt.Errorf("render: foreign handle %T", h)
	}
	if len(buf) < len(line) {
		return 0, &BufferSizeError{Needed: len(line)}
	}
	return copy(buf, line), nil
}
