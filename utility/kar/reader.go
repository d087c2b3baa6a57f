// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
)

// Open opens the kar archived from r. It will also check
// if the file is actually a kar archive, will return an error
// when file incorrect.
func Open(r io.ReaderAt) (*Archive, error) {
	magic := make([]byte, MagicLength)
	if _, err := r.ReadAt(magic, 0); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileFormat, err)
	} else if !bytes.Equal(magic, Magic[:]) {
		return nil, ErrFileFormat
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if _, err := r.ReadAt(headerSizeBytes, MagicLength); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileFormat, err)
	}

	headerSize, err := binaryToint64(headerSizeBytes)
	if err != nil || headerSize <= 0 {
		return nil, ErrFileFormat
	}

	headerBytes := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBytes, MagicLength+HeaderSizeNumberLength); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileFormat, err)
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileFormat, err)
	}

	ar := &Archive{
		reader: r,
		header: header,
		base:   MagicLength + HeaderSizeNumberLength + headerSize,
		index:  make(map[string]IndexEntry, len(header.Index)),
	}
	for _, e := range header.Index {
		ar.index[e.Name] = e
	}
	return ar, nil
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader io.ReaderAt
	header Header
	base   int64
	index  map[string]IndexEntry
}

// Header returns the header, index included
func (a *Archive) Header() Header {
	return a.header
}

// Files returns the index in archive order
func (a *Archive) Files() []IndexEntry {
	files := make([]IndexEntry, len(a.header.Index))
	copy(files, a.header.Index)
	return files
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, r.entry.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("kar: reading %q: %w", name, err)
	}
	return data, nil
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	entry, ok := a.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	section := io.NewSectionReader(a.reader, a.base+entry.Offset, entry.CompressedSize)
	return &Reader{
		entry:  entry,
		reader: lz4.NewReader(section),
	}, nil
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry  IndexEntry
	reader io.Reader
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}

// Name of the file being read
func (r *Reader) Name() string {
	return r.entry.Name
}

// Size of the file in uncompressed state
func (r *Reader) Size() int64 {
	return r.entry.Size
}
