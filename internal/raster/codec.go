package raster

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// Files start with a magic tag, a big-endian uint32 length and a JSON grid
// header of that length, followed by the gonum binary encoding of the cells.
const magic = "GRD1"

// maxHeaderBytes bounds the coordinate header we are willing to decode.
const maxHeaderBytes = 64 << 20

// ErrBadFormat is returned for streams that are not raster files.
var ErrBadFormat = errors.New("not a raster file")

// Write encodes r to w.
func Write(w io.Writer, r *Raster) error {
	if r.Grid.Len() == 0 {
		return errors.New("write raster: empty grid")
	}
	if len(r.Data) != r.Grid.Len() {
		return fmt.Errorf("write raster: %d cells for a %dx%d grid", len(r.Data), r.Rows(), r.Cols())
	}
	header, err := json.Marshal(r.Grid)
	if err != nil {
		return fmt.Errorf("encode grid header: %w", err)
	}
	if _, err := io.WriteString(w, magic); err != nil {
		return fmt.Errorf("write raster: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(header))); err != nil {
		return fmt.Errorf("write raster: %w", err)
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write raster: %w", err)
	}
	if _, err := r.Dense().MarshalBinaryTo(w); err != nil {
		return fmt.Errorf("write raster cells: %w", err)
	}
	return nil
}

// Read decodes a raster written by Write.
func Read(rd io.Reader) (*Raster, error) {
	tag := make([]byte, len(magic))
	if _, err := io.ReadFull(rd, tag); err != nil {
		return nil, fmt.Errorf("read raster: %w", err)
	}
	if string(tag) != magic {
		return nil, ErrBadFormat
	}
	var n uint32
	if err := binary.Read(rd, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("read raster header length: %w", err)
	}
	if n > maxHeaderBytes {
		return nil, fmt.Errorf("read raster: header of %d bytes: %w", n, ErrBadFormat)
	}
	header := make([]byte, n)
	if _, err := io.ReadFull(rd, header); err != nil {
		return nil, fmt.Errorf("read raster header: %w", err)
	}
	var g Grid
	if err := json.Unmarshal(header, &g); err != nil {
		return nil, fmt.Errorf("decode grid header: %w", err)
	}

	var dense mat.Dense
	if _, err := dense.UnmarshalBinaryFrom(rd); err != nil {
		return nil, fmt.Errorf("read raster cells: %w", err)
	}
	rows, cols := dense.Dims()
	if rows != g.Rows() || cols != g.Cols() {
		return nil, fmt.Errorf("read raster: %dx%d cells for a %dx%d grid: %w", rows, cols, g.Rows(), g.Cols(), ErrBadFormat)
	}
	return &Raster{Grid: g, Data: dense.RawMatrix().Data}, nil
}

// ReadFile decodes the raster stored at path.
func ReadFile(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// WriteFile encodes r to path, creating parent directories as needed.
func WriteFile(path string, r *Raster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Write(w, r); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
