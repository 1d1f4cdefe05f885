package fitsfile

import (
	"fmt"
	"io"
	"os"
)

// File is an output file supporting positioned writes. It is not safe for
// concurrent use; callers serialize appends.
type File struct {
	f    *os.File
	path string
	end  int64
}

// Create creates or truncates the file at path.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: path}, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Size returns the number of bytes written so far.
func (f *File) Size() int64 { return f.end }

// WritePrimary writes the primary header at offset 0.
func (f *File) WritePrimary(h Header) error {
	b, err := h.Encode()
	if err != nil {
		return fmt.Errorf("primary header: %w", err)
	}
	if _, err := f.f.WriteAt(b, 0); err != nil {
		return err
	}
	if f.end < BlockSize {
		f.end = BlockSize
	}
	return nil
}

// Append writes a header block followed by data padded to a block boundary
// at the end of the file, and returns the header's offset.
func (f *File) Append(h Header, data []byte) (int64, error) {
	if f.end == 0 {
		return 0, fmt.Errorf("%s: extension appended before primary header", f.path)
	}
	hb, err := h.Encode()
	if err != nil {
		return 0, err
	}
	off := f.end
	if _, err := f.f.WriteAt(hb, off); err != nil {
		return 0, err
	}
	padded := PaddedSize(int64(len(data)))
	buf := data
	if padded != int64(len(data)) {
		buf = make([]byte, padded)
		copy(buf, data)
	}
	if len(buf) > 0 {
		if _, err := f.f.WriteAt(buf, off+BlockSize); err != nil {
			return 0, err
		}
	}
	f.end = off + BlockSize + padded
	return off, nil
}

// Patch overwrites the header block at off.
func (f *File) Patch(off int64, h Header) error {
	if off < BlockSize || off+BlockSize > f.end {
		return fmt.Errorf("%s: patch offset %d outside written extensions", f.path, off)
	}
	b, err := h.Encode()
	if err != nil {
		return err
	}
	_, err = f.f.WriteAt(b, off)
	return err
}

// ReaderAt exposes the underlying file for read-back verification.
func (f *File) ReaderAt() io.ReaderAt { return f.f }

// Close syncs and closes the file.
func (f *File) Close() error {
	if err := f.f.Sync(); err != nil {
		f.f.Close()
		return err
	}
	return f.f.Close()
}
