package memory

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Vector file layout, little-endian:
//
//	magic "RAGV" | uint32 version | uint32 count | uint32 dim | count*dim float32
//
// Vector i belongs to passage i.
const (
	fileMagic   = "RAGV"
	fileVersion = 1
	headerSize  = len(fileMagic) + 3*4

	// maxDimension bounds the per-row buffer; TF-IDF vocabularies are the widest vectors written.
	maxDimension = 1 << 20
)

// Load reads a vector file into a new Storage.
func Load(path string) (*Storage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	s, err := decode(bufio.NewReader(f), info.Size()-int64(headerSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

// Read decodes a vector file stream.
func Read(r io.Reader) (*Storage, error) {
	return decode(r, -1)
}

// decode reads the stream. A non-negative payload is the byte count after the
// header; the header must agree with it before anything is allocated.
func decode(r io.Reader, payload int64) (*Storage, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if string(magic) != fileMagic {
		return nil, errors.New("not a vector file")
	}
	var hdr [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	version, count, dim := hdr[0], hdr[1], hdr[2]
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported vector file version %d", version)
	}
	if dim == 0 {
		return nil, errors.New("vector file has zero dimension")
	}
	if dim > maxDimension {
		return nil, fmt.Errorf("vector dimension %d exceeds %d", dim, maxDimension)
	}

	if payload >= 0 && int64(count)*int64(dim)*4 != payload {
		return nil, fmt.Errorf("header says %d vectors of dimension %d but file holds %d bytes of data", count, dim, payload)
	}

	// Without a known size, rows are appended as they arrive so a bad count
	// cannot force a large allocation up front.
	capHint := int(count)
	if payload < 0 {
		capHint = min(capHint, 1024)
	}
	s := &Storage{dimension: int(dim)}
	s.ids = make([]int, 0, capHint)
	s.vectors = make([][]float64, 0, capHint)
	row := make([]float32, dim)
	for i := 0; i < int(count); i++ {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		v := make([]float64, dim)
		for j, x := range row {
			v[j] = float64(x)
		}
		s.ids = append(s.ids, i)
		s.vectors = append(s.vectors, v)
	}
	return s, nil
}

// Save writes the index to path. Ids must be the positions 0..n-1 in order.
func (s *Storage) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := s.Write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes the index in vector file format.
func (s *Storage) Write(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, id := range s.ids {
		if id != i {
			return fmt.Errorf("vector at position %d has id %d; file format requires positional ids", i, id)
		}
	}
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return err
	}
	hdr := [3]uint32{fileVersion, uint32(len(s.vectors)), uint32(s.dimension)}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	row := make([]float32, s.dimension)
	for _, v := range s.vectors {
		for j, x := range v {
			if math.IsNaN(x) {
				return errors.New("vector contains NaN")
			}
			row[j] = float32(x)
		}
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	return nil
}
