// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) (*Builder, error) {
	temp, err := os.MkdirTemp("", "karBuilder")
	if err != nil {
		return nil, err
	}
	return &Builder{
		tempDir: temp,
		header:  header,
		names:   make(map[string]struct{}),
	}, nil
}

type tempFile struct {

	// Name is the actual name of the file
	Name string

	// TempName is the path of the compressed data
	TempName string

	// Size in uncompressed state
	Size int64

	Compressed int64
}

// Builder is the high level builder for the archive format.
// Archives are versioned and cannot be appended to, this Builder
// is the way to create an archive. Whenever Add is called, Builder
// compresses the data into a temporary dir, then finally bundles
// the files together, writing them out with WriteTo.
// Close removes the temporary dir.
type Builder struct {
	tempDir string
	header  Header

	mutex sync.Mutex
	names map[string]struct{}
	files []tempFile
}

// Add appends data to the builder with a given name.
// Will block until lz4 finishes compression. Is safe
// to use concurrently in different goroutines.
func (b *Builder) Add(name string, data io.Reader) error {
	b.mutex.Lock()
	if _, ok := b.names[name]; ok {
		b.mutex.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	b.names[name] = struct{}{}
	b.mutex.Unlock()

	f, err := b.compress(data)
	if err != nil {
		b.mutex.Lock()
		delete(b.names, name)
		b.mutex.Unlock()
		return fmt.Errorf("kar: adding %q: %w", name, err)
	}
	f.Name = name

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, f)
	return nil
}

func (b *Builder) compress(data io.Reader) (tempFile, error) {
	f, err := os.CreateTemp(b.tempDir, "entry")
	if err != nil {
		return tempFile{}, err
	}
	defer f.Close()

	writer := lz4.NewWriter(f)
	written, err := io.Copy(writer, data)
	if err != nil {
		return tempFile{}, err
	}
	if err := writer.Close(); err != nil {
		return tempFile{}, err
	}
	info, err := f.Stat()
	if err != nil {
		return tempFile{}, err
	}
	return tempFile{
		TempName:   f.Name(),
		Size:       written,
		Compressed: info.Size(),
	}, nil
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	header := b.header
	header.Index = nil
	var offset int64
	for _, v := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           v.Name,
			Offset:         offset,
			Size:           v.Size,
			CompressedSize: v.Compressed,
		})
		offset += v.Compressed
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, part := range [][]byte{Magic[:], int64ToBinary(int64(len(rawHeader))), rawHeader} {
		n, err := w.Write(part)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	for _, v := range b.files {
		n, err := copyFile(w, v.TempName)
		total += n
		if err != nil {
			return total, fmt.Errorf("kar: writing %q: %w", v.Name, err)
		}
	}
	return total, nil
}

func copyFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Close removes the temporary files of the builder.
func (b *Builder) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = nil
	return os.RemoveAll(b.tempDir)
}
