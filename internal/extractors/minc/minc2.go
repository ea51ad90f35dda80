package minc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/scigolib/hdf5"
)

// hdf5Signature starts every HDF5 file without a user block.
var hdf5Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// mincRoot is the HDF5 group that holds all MINC2 objects.
const mincRoot = "/minc-2.0"

// HeaderReader reads MINC2 attribute groups from a file.
type HeaderReader interface {
	ReadGroups(name string) ([]Group, error)
}

// HDF5Reader reads MINC2 headers with scigolib/hdf5.
type HDF5Reader struct{}

// ReadGroups returns the attributes of every dataset below /minc-2.0,
// keyed by the dataset's base name.
func (HDF5Reader) ReadGroups(name string) ([]Group, error) {
	f, err := hdf5.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open HDF5: %w", err)
	}
	defer f.Close()

	var groups []Group
	var walkErr error
	f.Walk(func(p string, obj hdf5.Object) {
		ds, ok := obj.(*hdf5.Dataset)
		if !ok || walkErr != nil || !strings.HasPrefix(p, mincRoot+"/") {
			return
		}
		attrs, err := ds.Attributes()
		if err != nil {
			walkErr = fmt.Errorf("%s: %w", p, err)
			return
		}
		g := Group{Name: path.Base(p)}
		for _, a := range attrs {
			v, err := a.ReadValue()
			if err != nil {
				g.Attrs = append(g.Attrs, Attr{Name: a.Name})
				continue
			}
			g.Attrs = append(g.Attrs, textAttr(a.Name, v))
		}
		groups = append(groups, g)
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return groups, nil
}

func textAttr(name string, v any) Attr {
	var s string
	switch v := v.(type) {
	case string:
		s = v
	case []string:
		if len(v) != 1 {
			return Attr{Name: name}
		}
		s = v[0]
	case []byte:
		s = string(v)
	default:
		return Attr{Name: name}
	}
	s = strings.TrimRight(s, "\x00")
	if !utf8.ValidString(s) {
		return Attr{Name: name}
	}
	return Attr{Name: name, Type: ncChar, Text: s, IsText: true}
}

// isHDF5 reports whether the file starts with the HDF5 signature.
func isHDF5(f io.ReaderAt) bool {
	sig := make([]byte, len(hdf5Signature))
	if _, err := f.ReadAt(sig, 0); err != nil {
		return false
	}
	return bytes.Equal(sig, hdf5Signature)
}

func sniffHDF5(name string) (bool, error) {
	f, err := os.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()
	return isHDF5(f), nil
}
