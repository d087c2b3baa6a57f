// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package assets reads the files the sample needs at runtime from a
// directory, a packr box or a kar archive.
package assets

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/devblok/hellotri/utility/kar"
	"github.com/gobuffalo/packd"
	"github.com/gobuffalo/packr"
	"golang.org/x/exp/mmap"
)

// Source is a read-only set of named files. Names use forward slashes.
type Source interface {

	// ReadFile returns the whole content of the named file.
	ReadFile(name string) ([]byte, error)

	// List returns the names of all files, sorted.
	List() ([]string, error)
}

// Dir is a Source rooted at a directory.
type Dir string

// ReadFile implements interface
func (d Dir) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(string(d), filepath.FromSlash(name)))
}

// List implements interface
func (d Dir) List() ([]string, error) {
	var names []string
	root := string(d)
	if err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Box is a Source backed by a packr box.
type Box struct {
	box packr.Box
}

// FromBox wraps a box created with packr.NewBox.
func FromBox(b packr.Box) Box {
	return Box{box: b}
}

// ReadFile implements interface
func (b Box) ReadFile(name string) ([]byte, error) {
	return b.box.Find(name)
}

// List implements interface
func (b Box) List() ([]string, error) {
	var names []string
	err := b.box.Walk(func(name string, _ packd.File) error {
		names = append(names, filepath.ToSlash(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Archive is a Source backed by a memory mapped kar archive.
type Archive struct {
	mapped  *mmap.ReaderAt
	archive *kar.Archive
}

// OpenArchive maps the kar archive at path.
func OpenArchive(path string) (*Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Archive{mapped: r, archive: ar}, nil
}

// ReadFile implements interface
func (a *Archive) ReadFile(name string) ([]byte, error) {
	return a.archive.ReadAll(name)
}

// List implements interface
func (a *Archive) List() ([]string, error) {
	var names []string
	for _, e := range a.archive.Files() {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Close unmaps the archive
func (a *Archive) Close() error {
	return a.mapped.Close()
}

// Open returns a Dir when path is a directory and
// an Archive otherwise. The closer is a no-op for directories.
func Open(path string) (Source, func() error, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return Dir(path), func() error { return nil }, nil
	}
	ar, err := OpenArchive(path)
	if err != nil {
		return nil, nil, err
	}
	return ar, ar.Close, nil
}
