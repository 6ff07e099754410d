package pmtiles

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTileNotFound is returned when the archive has no tile at z/x/y.
var ErrTileNotFound = errors.New("tile not found")

// maxLeafDepth bounds directory recursion; the format uses at most three
// levels in practice.
const maxLeafDepth = 4

// Reader serves tiles from an archive.
type Reader struct {
	r      io.ReaderAt
	closer io.Closer
	header HeaderV3
	root   []EntryV3
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open pmtiles %s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

// NewReader reads the header and root directory from r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	buf := make([]byte, HeaderV3LenBytes)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := DeserializeHeader(buf)
	if err != nil {
		return nil, err
	}
	root, err := readDirectory(r, h.RootOffset, h.RootLength, h.InternalCompression)
	if err != nil {
		return nil, fmt.Errorf("read root directory: %w", err)
	}
	return &Reader{r: r, header: h, root: root}, nil
}

// Header returns the archive header.
func (rd *Reader) Header() HeaderV3 {
	return rd.header
}

// Metadata returns the decoded JSON metadata section.
func (rd *Reader) Metadata() (map[string]any, error) {
	if rd.header.MetadataLength == 0 {
		return map[string]any{}, nil
	}
	buf, err := readAt(rd.r, rd.header.MetadataOffset, rd.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	return DeserializeMetadata(buf, rd.header.InternalCompression)
}

// Tile returns the raw (possibly compressed) tile bytes at z/x/y. Use
// Header().TileCompression to decode.
func (rd *Reader) Tile(z uint8, x, y uint32) ([]byte, error) {
	if z < rd.header.MinZoom || z > rd.header.MaxZoom {
		return nil, ErrTileNotFound
	}
	id := ZxyToID(z, x, y)
	dir := rd.root
	for depth := 0; depth < maxLeafDepth; depth++ {
		e, ok := FindTile(dir, id)
		if !ok {
			return nil, ErrTileNotFound
		}
		if e.RunLength > 0 {
			return readAt(rd.r, rd.header.TileDataOffset+e.Offset, uint64(e.Length))
		}
		leaf, err := readDirectory(rd.r, rd.header.LeafDirectoryOffset+e.Offset, uint64(e.Length), rd.header.InternalCompression)
		if err != nil {
			return nil, fmt.Errorf("read leaf directory: %w", err)
		}
		dir = leaf
	}
	return nil, ErrTileNotFound
}

// Close releases the underlying file when the reader owns one.
func (rd *Reader) Close() error {
	if rd.closer == nil {
		return nil
	}
	return rd.closer.Close()
}

func readDirectory(r io.ReaderAt, offset, length uint64, c Compression) ([]EntryV3, error) {
	buf, err := readAt(r, offset, length)
	if err != nil {
		return nil, err
	}
	return DeserializeEntries(buf, c)
}

func readAt(r io.ReaderAt, offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, int64(offset))
	if err != nil && !(errors.Is(err, io.EOF) && uint64(n) == length) {
		return nil, err
	}
	return buf, nil
}
