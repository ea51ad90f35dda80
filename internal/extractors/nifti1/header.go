package nifti1

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// headerSize is sizeof_hdr of a NIfTI-1 header.
const headerSize = 348

var errNotNIfTI1 = errors.New("not a NIfTI-1 header")

// Header is the on-disk NIfTI-1 header layout.
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       uint8
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     uint8
	XyztUnits     uint8
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// ReadHeaderFile reads the header of a .nii, .nii.gz or .hdr file.
func ReadHeaderFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHeader(f)
}

// ReadHeader decodes a NIfTI-1 header, transparently handling gzip
// compression and either byte order.
func ReadHeader(r io.Reader) (*Header, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errNotNIfTI1
		}
		return nil, err
	}

	// sizeof_hdr is fixed at 348, which is enough to tell the byte order of
	// a valid header without looking at dim[0].
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw) == headerSize:
		order = binary.BigEndian
	default:
		return nil, errNotNIfTI1
	}

	var h Header
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if m := h.MagicString(); m != "n+1" && m != "ni1" {
		return nil, errNotNIfTI1
	}
	return &h, nil
}

// MagicString returns the magic field without trailing NULs.
func (h *Header) MagicString() string { return cString(h.Magic[:]) }

// Zooms returns the voxel sizes for the dimensions in use.
func (h *Header) Zooms() []float64 {
	n := int(h.Dim[0])
	if n < 0 {
		n = 0
	}
	if n > 7 {
		n = 7
	}
	zooms := make([]float64, n)
	for i := range zooms {
		zooms[i] = float64(h.Pixdim[i+1])
	}
	return zooms
}

// DimAxes returns the 0-based frequency, phase and slice axes, nil when unset.
func (h *Header) DimAxes() (freq, phase, slice any) {
	axis := func(v uint8) any {
		if v == 0 {
			return nil
		}
		return int(v) - 1
	}
	return axis(h.DimInfo & 0x03), axis((h.DimInfo >> 2) & 0x03), axis((h.DimInfo >> 4) & 0x03)
}

// Units returns the spatial and temporal unit labels.
func (h *Header) Units() (spatial, temporal string) {
	return spatialUnits[h.XyztUnits&0x07], temporalUnits[h.XyztUnits&0x38]
}

func cString(b []byte) string {
	return strings.ToValidUTF8(string(bytes.TrimRight(b, "\x00")), "")
}

var spatialUnits = map[uint8]string{
	0: "unknown",
	1: "meter",
	2: "mm",
	3: "micron",
}

var temporalUnits = map[uint8]string{
	0:  "unknown",
	8:  "sec",
	16: "msec",
	24: "usec",
	32: "hz",
	40: "ppm",
	48: "rads",
}

var dtypeNames = map[int16]string{
	2:    "uint8",
	4:    "int16",
	8:    "int32",
	16:   "float32",
	32:   "complex64",
	64:   "float64",
	128:  "void24",
	256:  "int8",
	512:  "uint16",
	768:  "uint32",
	1024: "int64",
	1280: "uint64",
	1536: "float128",
	1792: "complex128",
	2048: "complex256",
	2304: "void32",
}

var intentLabels = map[int16]string{
	0:    "none",
	2:    "correlation",
	3:    "t test",
	4:    "f test",
	5:    "z score",
	6:    "chi2",
	7:    "beta",
	8:    "binomial",
	9:    "gamma",
	10:   "poisson",
	11:   "normal",
	12:   "non central f test",
	13:   "non central chi2",
	14:   "logistic",
	15:   "laplace",
	16:   "uniform",
	17:   "non central t test",
	18:   "weibull",
	19:   "chi",
	20:   "inverse gaussian",
	21:   "extreme value 1",
	22:   "p value",
	23:   "log p value",
	24:   "log10 p value",
	1001: "estimate",
	1002: "label",
	1003: "neuroname",
	1004: "general matrix",
	1005: "symmetric matrix",
	1006: "displacement vector",
	1007: "vector",
	1008: "pointset",
	1009: "triangle",
	1010: "quaternion",
	1011: "dimensionless",
	2001: "time series",
	2002: "node index",
	2003: "rgb vector",
	2004: "rgba vector",
	2005: "shape",
}

var xformLabels = map[int16]string{
	0: "unknown",
	1: "scanner",
	2: "aligned",
	3: "talairach",
	4: "mni",
	5: "template",
}

var sliceOrderLabels = map[uint8]string{
	0: "unknown",
	1: "sequential increasing",
	2: "sequential decreasing",
	3: "alternating increasing",
	4: "alternating decreasing",
	5: "alternating increasing 2",
	6: "alternating decreasing 2",
}
