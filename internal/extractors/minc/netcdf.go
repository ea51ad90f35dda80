package minc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// NetCDF classic header tags.
const (
	ncDimension = 0x0A
	ncVariable  = 0x0B
	ncAttribute = 0x0C
)

// NetCDF external types.
const (
	ncByte   = 1
	ncChar   = 2
	ncShort  = 3
	ncInt    = 4
	ncFloat  = 5
	ncDouble = 6
)

var typeSize = map[uint32]int{
	ncByte:   1,
	ncChar:   1,
	ncShort:  2,
	ncInt:    4,
	ncFloat:  4,
	ncDouble: 8,
}

// maxHeaderItems bounds list lengths read from untrusted headers.
const maxHeaderItems = 1 << 20

var errNotNetCDF = errors.New("not a NetCDF classic file")

// Attr is one header attribute. Text is set for character attributes that
// decode as UTF-8; other attributes carry only their type.
type Attr struct {
	Name   string
	Type   uint32
	Text   string
	IsText bool
}

// Group is a named set of attributes: the global attributes or those of
// one variable.
type Group struct {
	Name  string
	Attrs []Attr
}

type cdfReader struct {
	r       *bufio.Reader
	version byte
}

// ReadNetCDFHeader parses the header of a NetCDF classic (CDF-1) or 64-bit
// offset (CDF-2) file. Global attributes are returned under GlobalGroup.
func ReadNetCDFHeader(r io.Reader) ([]Group, error) {
	cr := &cdfReader{r: bufio.NewReader(r)}
	magic := make([]byte, 4)
	if _, err := io.ReadFull(cr.r, magic); err != nil {
		return nil, errNotNetCDF
	}
	if string(magic[:3]) != "CDF" || (magic[3] != 1 && magic[3] != 2) {
		return nil, errNotNetCDF
	}
	cr.version = magic[3]

	if _, err := cr.u32(); err != nil { // numrecs
		return nil, err
	}
	if err := cr.skipDims(); err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}
	global, err := cr.attrs()
	if err != nil {
		return nil, fmt.Errorf("global attributes: %w", err)
	}
	groups := []Group{{Name: GlobalGroup, Attrs: global}}

	tag, n, err := cr.list()
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	if n > 0 && tag != ncVariable {
		return nil, fmt.Errorf("variables: unexpected tag %#x", tag)
	}
	for range n {
		name, err := cr.name()
		if err != nil {
			return nil, fmt.Errorf("variable: %w", err)
		}
		ndims, err := cr.count()
		if err != nil {
			return nil, err
		}
		for range ndims {
			if _, err := cr.u32(); err != nil {
				return nil, err
			}
		}
		attrs, err := cr.attrs()
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		// nc_type, vsize, begin
		if _, err := cr.u32(); err != nil {
			return nil, err
		}
		if _, err := cr.u32(); err != nil {
			return nil, err
		}
		beginSize := 4
		if cr.version == 2 {
			beginSize = 8
		}
		if _, err := cr.r.Discard(beginSize); err != nil {
			return nil, err
		}
		groups = append(groups, Group{Name: name, Attrs: attrs})
	}
	return groups, nil
}

func (c *cdfReader) u32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (c *cdfReader) count() (int, error) {
	n, err := c.u32()
	if err != nil {
		return 0, err
	}
	if n > maxHeaderItems {
		return 0, fmt.Errorf("implausible count %d", n)
	}
	return int(n), nil
}

// list reads a tag and element count; ABSENT is two zero words.
func (c *cdfReader) list() (uint32, int, error) {
	tag, err := c.u32()
	if err != nil {
		return 0, 0, err
	}
	n, err := c.count()
	if err != nil {
		return 0, 0, err
	}
	return tag, n, nil
}

func (c *cdfReader) padded(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.r, b); err != nil {
		return nil, err
	}
	if pad := (4 - n%4) % 4; pad > 0 {
		if _, err := c.r.Discard(pad); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (c *cdfReader) name() (string, error) {
	n, err := c.count()
	if err != nil {
		return "", err
	}
	b, err := c.padded(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cdfReader) skipDims() error {
	tag, n, err := c.list()
	if err != nil {
		return err
	}
	if n > 0 && tag != ncDimension {
		return fmt.Errorf("unexpected tag %#x", tag)
	}
	for range n {
		if _, err := c.name(); err != nil {
			return err
		}
		if _, err := c.u32(); err != nil {
			return err
		}
	}
	return nil
}

func (c *cdfReader) attrs() ([]Attr, error) {
	tag, n, err := c.list()
	if err != nil {
		return nil, err
	}
	if n > 0 && tag != ncAttribute {
		return nil, fmt.Errorf("unexpected tag %#x", tag)
	}
	attrs := make([]Attr, 0, n)
	for range n {
		name, err := c.name()
		if err != nil {
			return nil, err
		}
		typ, err := c.u32()
		if err != nil {
			return nil, err
		}
		size, ok := typeSize[typ]
		if !ok {
			return nil, fmt.Errorf("attribute %s: unknown type %d", name, typ)
		}
		nelems, err := c.count()
		if err != nil {
			return nil, err
		}
		raw, err := c.padded(nelems * size)
		if err != nil {
			return nil, err
		}
		a := Attr{Name: name, Type: typ}
		if typ == ncChar {
			s := strings.TrimRight(string(raw), "\x00")
			if utf8.ValidString(s) {
				a.Text, a.IsText = s, true
			}
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}
