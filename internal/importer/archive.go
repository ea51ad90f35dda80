package importer

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var errUnsupportedArchive = errors.New("unsupported archive format")

// Extract unpacks a tar, gzipped tar or zip archive into dest. Members that
// would land outside dest are rejected.
func Extract(archive, dest string) (int, error) {
	dest = filepath.Clean(dest)
	f, err := os.Open(archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(magic, []byte("PK\x03\x04")):
		fi, err := f.Stat()
		if err != nil {
			return 0, err
		}
		zr, err := zip.NewReader(f, fi.Size())
		if err != nil {
			return 0, err
		}
		return extractZip(zr, dest)
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return 0, err
		}
		defer gz.Close()
		return extractTar(tar.NewReader(gz), dest)
	default:
		n, err := extractTar(tar.NewReader(br), dest)
		if errors.Is(err, tar.ErrHeader) {
			return 0, fmt.Errorf("%s: %w", archive, errUnsupportedArchive)
		}
		return n, err
	}
}

func target(dest, name string) (string, error) {
	p := filepath.Join(dest, filepath.FromSlash(name))
	if p != dest && !strings.HasPrefix(p, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member %q escapes the target directory", name)
	}
	return p, nil
}

func extractTar(tr *tar.Reader, dest string) (int, error) {
	n := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		p, err := target(dest, hdr.Name)
		if err != nil {
			return n, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(p, 0o755); err != nil {
				return n, err
			}
		case tar.TypeReg:
			if err := writeFile(p, tr); err != nil {
				return n, err
			}
			n++
		}
	}
}

func extractZip(zr *zip.Reader, dest string) (int, error) {
	n := 0
	for _, zf := range zr.File {
		p, err := target(dest, zf.Name)
		if err != nil {
			return n, err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return n, err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return n, err
		}
		err = writeFile(p, rc)
		rc.Close()
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func writeFile(p string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
