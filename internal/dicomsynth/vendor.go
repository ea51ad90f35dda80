package dicomsynth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// privateElement builds an element for a private tag. dicom.NewElement
// rejects tags missing from the dictionary, so the VR is given explicitly.
func privateElement(t tag.Tag, rawVR string, data any) *dicom.Element {
	value, err := dicom.NewValue(data)
	if err != nil {
		panic(fmt.Sprintf("failed to create value for private element %v: %v", t, err))
	}
	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.GetVRKind(t, rawVR),
		RawValueRepresentation: rawVR,
		Value:                  value,
	}
}

// vendorElements returns the private header block a scanner of the given
// manufacturer writes into every image. Unknown vendors get none.
func vendorElements(manufacturer string, rng *rand.Rand) []*dicom.Element {
	switch m := strings.ToUpper(manufacturer); {
	case strings.HasPrefix(m, "SIEMENS"):
		return siemensElements(rng)
	case strings.HasPrefix(m, "GE"):
		return geElements(rng)
	case strings.HasPrefix(m, "PHILIPS"):
		return philipsElements(rng)
	}
	return nil
}

type csaElement struct {
	Name    string
	VM      int32
	VR      string
	SyngoDT int32
	Values  []string
}

// encodeCSA writes elements in the Siemens "SV10" CSA2 layout.
func encodeCSA(elements []csaElement) []byte {
	var buf bytes.Buffer
	buf.WriteString("SV10")
	buf.Write([]byte{0x04, 0x03, 0x02, 0x01})
	// writes to a bytes.Buffer cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(elements)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0x4D))

	for _, elem := range elements {
		name := make([]byte, 64)
		copy(name, elem.Name)
		buf.Write(name)
		_ = binary.Write(&buf, binary.LittleEndian, elem.VM)
		vr := make([]byte, 4)
		copy(vr, elem.VR)
		buf.Write(vr)
		_ = binary.Write(&buf, binary.LittleEndian, elem.SyngoDT)
		_ = binary.Write(&buf, binary.LittleEndian, int32(len(elem.Values)))
		_ = binary.Write(&buf, binary.LittleEndian, uint32(0x4D))

		for _, v := range elem.Values {
			itemLen := uint32(len(v))
			for j := 0; j < 4; j++ {
				_ = binary.Write(&buf, binary.LittleEndian, itemLen)
			}
			buf.WriteString(v)
			if pad := (4 - len(v)%4) % 4; pad > 0 {
				buf.Write(make([]byte, pad))
			}
		}
	}
	// OB values must have even length
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func siemensElements(rng *rand.Rand) []*dicom.Element {
	image := encodeCSA([]csaElement{
		{Name: "NumberOfImagesInMosaic", VM: 1, VR: "IS", SyngoDT: 6, Values: []string{"1"}},
		{Name: "SliceNormalVector", VM: 3, VR: "FD", SyngoDT: 3, Values: []string{"0.0", "0.0", "1.0"}},
		{Name: "B_value", VM: 1, VR: "IS", SyngoDT: 6, Values: []string{"0"}},
		{Name: "BandwidthPerPixelPhaseEncode", VM: 1, VR: "FD", SyngoDT: 3, Values: []string{fmt.Sprintf("%.3f", 20+rng.Float64()*40)}},
		{Name: "MosaicRefAcqTimes", VM: 1, VR: "FD", SyngoDT: 3, Values: []string{"0.0"}},
		{Name: "RealDwellTime", VM: 1, VR: "IS", SyngoDT: 6, Values: []string{fmt.Sprintf("%d", 2000+rng.IntN(6000))}},
		{Name: "ImaCoilString", VM: 1, VR: "LO", SyngoDT: 19, Values: []string{"HEA;HEP"}},
	})
	series := encodeCSA([]csaElement{
		{Name: "UsedPatientWeight", VM: 1, VR: "DS", SyngoDT: 3, Values: []string{fmt.Sprintf("%d", 50+rng.IntN(50))}},
		{Name: "MrProtocolVersion", VM: 1, VR: "IS", SyngoDT: 6, Values: []string{"1"}},
		{Name: "MrPhoenixProtocol", VM: 1, VR: "UN", SyngoDT: 0, Values: []string{"### ASCCONV BEGIN ###\n### ASCCONV END ###"}},
		{Name: "CoilForGradient", VM: 1, VR: "LO", SyngoDT: 19, Values: []string{"AS"}},
	})
	return []*dicom.Element{
		privateElement(tag.Tag{Group: 0x0029, Element: 0x0010}, "LO", []string{"SIEMENS CSA HEADER"}),
		privateElement(tag.Tag{Group: 0x0029, Element: 0x1010}, "OB", image),
		privateElement(tag.Tag{Group: 0x0029, Element: 0x1020}, "OB", series),
	}
}

func geElements(rng *rand.Rand) []*dicom.Element {
	software := fmt.Sprintf("DV%d.%d_R0%d", 20+rng.IntN(10), rng.IntN(10), 1+rng.IntN(4))
	diffusion := make([]string, 4)
	for i := range diffusion {
		diffusion[i] = fmt.Sprintf("%d", rng.IntN(1000))
	}
	return []*dicom.Element{
		privateElement(tag.Tag{Group: 0x0009, Element: 0x0010}, "LO", []string{"GEMS_IDEN_01"}),
		privateElement(tag.Tag{Group: 0x0009, Element: 0x10E3}, "LO", []string{software}),
		privateElement(tag.Tag{Group: 0x0043, Element: 0x0010}, "LO", []string{"GEMS_PARM_01"}),
		privateElement(tag.Tag{Group: 0x0043, Element: 0x1039}, "IS", diffusion),
	}
}

func philipsElements(rng *rand.Rand) []*dicom.Element {
	item := []*dicom.Element{
		privateElement(tag.Tag{Group: 0x2005, Element: 0x0011}, "LO", []string{"Philips MR Imaging DD 005"}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x1100}, "DS", []string{fmt.Sprintf("%.6f", 1+rng.Float64()*4)}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x1101}, "DS", []string{fmt.Sprintf("%.6f", rng.Float64()*10-5)}),
	}
	return []*dicom.Element{
		privateElement(tag.Tag{Group: 0x2001, Element: 0x0010}, "LO", []string{"Philips Imaging DD 001"}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x0010}, "LO", []string{"Philips MR Imaging DD 001"}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x100E}, "SQ", [][]*dicom.Element{item}),
	}
}
