// Package archive stores single files as gzip-compressed payloads. Output
// files and pseudo-potentials are kept compressed at rest and only inflated
// on access.
package archive

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Suffix is appended to the original file name when a file is stored
// compressed.
const Suffix = ".gz"

// Compress returns the gzip-compressed form of data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates gzip-compressed data.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Store compresses the file at src and writes the archive to dst. When dst
// lacks the archive suffix it is appended, mirroring how the source file
// name maps onto the stored name. The final archive path is returned.
func Store(src, dst string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("path %q does not point to a file", src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	if filepath.Ext(dst) != Suffix {
		dst += Suffix
	}
	return dst, StoreBytes(data, dst)
}

// StoreBytes compresses data and writes the archive to dst.
func StoreBytes(data []byte, dst string) error {
	compressed, err := Compress(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, compressed, 0644)
}

// Content returns the contents of the archive at path, decompressed unless
// raw is set.
func Content(path string, raw bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if raw {
		return data, nil
	}
	return Decompress(data)
}

// Extract writes the decompressed contents of the archive at src to dst.
func Extract(src, dst string) error {
	data, err := Content(src, false)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
