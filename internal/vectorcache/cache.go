// Package vectorcache stores passage vectors on disk keyed by model and
// dataset fingerprint, so restarts do not re-encode an unchanged dataset.
package vectorcache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Supported codecs.
const (
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
	CodecNone = "none"
)

var magic = [4]byte{'P', 'Q', 'V', '1'}

// Header bounds; a passage corpus never comes close.
const (
	maxDim    = 1 << 16
	maxValues = 1 << 28
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Cache reads and writes vector files under a directory.
type Cache struct {
	dir   string
	codec string
}

// New returns a cache rooted at dir using codec.
func New(dir, codec string) (*Cache, error) {
	switch codec {
	case "":
		codec = CodecZstd
	case CodecZstd, CodecLZ4, CodecNone:
	default:
		return nil, fmt.Errorf("unknown vector cache codec: %s", codec)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, codec: codec}, nil
}

func (c *Cache) path(model, fingerprint string) string {
	name := unsafeName.ReplaceAllString(model, "_") + "-" + unsafeName.ReplaceAllString(fingerprint, "_") + ".vec." + c.codec
	return filepath.Join(c.dir, name)
}

// Load returns the cached vectors for (model, fingerprint). A missing entry
// returns ok=false and no error.
func (c *Cache) Load(model, fingerprint string) (vectors [][]float32, ok bool, err error) {
	f, err := os.Open(c.path(model, fingerprint))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	var r io.Reader
	switch c.codec {
	case CodecZstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, false, err
		}
		defer dec.Close()
		r = dec
	case CodecLZ4:
		r = lz4.NewReader(f)
	default:
		r = f
	}
	vectors, err = decode(bufio.NewReader(r))
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", c.path(model, fingerprint), err)
	}
	return vectors, true, nil
}

// Store writes vectors for (model, fingerprint), replacing any previous entry.
func (c *Cache) Store(model, fingerprint string, vectors [][]float32) error {
	final := c.path(model, fingerprint)
	tmp, err := os.CreateTemp(c.dir, ".vec-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var w io.WriteCloser
	switch c.codec {
	case CodecZstd:
		enc, err := zstd.NewWriter(tmp)
		if err != nil {
			tmp.Close()
			return err
		}
		w = enc
	case CodecLZ4:
		w = lz4.NewWriter(tmp)
	default:
		w = nopCloser{tmp}
	}
	bw := bufio.NewWriter(w)
	if err := encode(bw, vectors); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), final)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// File layout: magic, count uint32, dim uint32, count*dim float32 (little endian).
func encode(w io.Writer, vectors [][]float32) error {
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	header := make([]byte, 12)
	copy(header, magic[:])
	binary.LittleEndian.PutUint32(header[4:], uint32(len(vectors)))
	binary.LittleEndian.PutUint32(header[8:], uint32(dim))
	if _, err := w.Write(header); err != nil {
		return err
	}
	buf := make([]byte, 4*dim)
	for _, v := range vectors {
		if len(v) != dim {
			return errors.New("vectors have different dimensions")
		}
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func decode(r io.Reader) ([][]float32, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if [4]byte(header[:4]) != magic {
		return nil, errors.New("bad magic")
	}
	count := int(binary.LittleEndian.Uint32(header[4:]))
	dim := int(binary.LittleEndian.Uint32(header[8:]))
	if count > 0 && (dim == 0 || dim > maxDim || count*dim > maxValues) {
		return nil, fmt.Errorf("implausible header: %d vectors of dimension %d", count, dim)
	}
	// grow as rows arrive so a truncated file fails before a large allocation
	out := make([][]float32, 0, min(count, 1024))
	buf := make([]byte, 4*dim)
	for range count {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		out = append(out, v)
	}
	return out, nil
}
