// Package dicomsynth writes small synthetic MR DICOM series. The files carry
// realistic header content (patient, study, series, geometry and scanner
// attributes) and a burned-in label, and are used as demo data and test
// fixtures for the extraction and study-spec pipeline.
package dicomsynth

import (
	"fmt"
	"hash/fnv"
	"math"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SeriesSpec describes one series to generate.
type SeriesSpec struct {
	PatientName       string
	PatientID         string
	PatientSex        string
	PatientAge        string
	PatientBirthDate  string
	StudyID           string
	StudyDescription  string
	StudyDate         string
	ProtocolName      string
	SeriesDescription string
	SeriesNumber      int
	Images            int
	// ImageType defaults to ORIGINAL\PRIMARY\M\ND.
	ImageType []string
}

// Options contains all parameters needed to generate a set of series.
type Options struct {
	OutputDir string
	Series    []SeriesSpec
	Width     int   // default 64
	Height    int   // default 64
	Seed      int64 // drives UIDs and pixel noise
	Workers   int   // 0 = NumCPU
	NoLabel   bool  // skip the burned-in text label

	// VendorHeaders adds the private header blocks of the scanner vendor
	// (Siemens CSA, GE and Philips private groups) to every image.
	VendorHeaders bool
	// Quirks are applied to every patient and series.
	Quirks []Quirk

	// ProgressCallback is called after every written file.
	ProgressCallback func(current, total int)
}

// GeneratedFile describes a written file.
type GeneratedFile struct {
	Path           string
	StudyUID       string
	SeriesUID      string
	SOPInstanceUID string
	SeriesNumber   int
	InstanceNumber int
}

type imageTask struct {
	index     int
	width     int
	height    int
	filePath  string
	label     string
	pixelSeed uint64
	metadata  []*dicom.Element
	writeOpts []dicom.WriteOption
	result    GeneratedFile
}

func mustNewElement(t tag.Tag, value any) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func ds(f float64) string {
	return fmt.Sprintf("%.6g", f)
}

// Generate writes all series below OutputDir as
// <StudyID>/<SeriesNumber>_<ProtocolName>/IM<n>.dcm and returns the written
// files in generation order.
func Generate(opts Options) ([]GeneratedFile, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory must be set")
	}
	if len(opts.Series) == 0 {
		return nil, fmt.Errorf("at least one series is required")
	}
	if opts.Width <= 0 {
		opts.Width = 64
	}
	if opts.Height <= 0 {
		opts.Height = 64
	}

	rng := randv2.New(randv2.NewPCG(uint64(opts.Seed), uint64(opts.Seed)))

	// Phase 1: build all tasks sequentially so UIDs and parameters are
	// independent of worker scheduling.
	var tasks []imageTask
	patients := make(map[string]SeriesSpec)
	for si, spec := range opts.Series {
		if spec.Images <= 0 {
			return nil, fmt.Errorf("series %d: number of images must be > 0, got %d", si, spec.Images)
		}
		if spec.PatientName == "" || spec.ProtocolName == "" {
			return nil, fmt.Errorf("series %d: patient name and protocol name are required", si)
		}
		var omit map[tag.Tag]bool
		if len(opts.Quirks) > 0 {
			applyQuirks(&spec, opts.Quirks, patients, rng)
			if hasQuirk(opts.Quirks, QuirkMissingTags) {
				omit = omittedTags(rng)
			}
		}
		if spec.SeriesNumber == 0 {
			spec.SeriesNumber = si + 1
		}
		if spec.PatientID == "" {
			spec.PatientID = fmt.Sprintf("PID%06d", hashString(spec.PatientName)%1000000)
		}
		if spec.StudyID == "" {
			spec.StudyID = "1"
		}
		if spec.StudyDate == "" {
			spec.StudyDate = "20180101"
		}
		if len(spec.ImageType) == 0 {
			spec.ImageType = []string{"ORIGINAL", "PRIMARY", "M", "ND"}
		}

		key := fmt.Sprintf("%d/%s/%s", opts.Seed, spec.PatientID, spec.StudyID)
		studyUID := DeterministicUID(key)
		seriesUID := DeterministicUID(fmt.Sprintf("%s/series/%d", key, spec.SeriesNumber))
		frameOfReferenceUID := DeterministicUID(fmt.Sprintf("%s/frame/%d", key, spec.SeriesNumber))
		params := newSeriesParams(rng)

		seriesDir := filepath.Join(opts.OutputDir, spec.StudyID, fmt.Sprintf("%d_%s", spec.SeriesNumber, sanitizePath(spec.ProtocolName)))
		if err := os.MkdirAll(seriesDir, 0755); err != nil {
			return nil, fmt.Errorf("create series directory: %w", err)
		}

		for n := 1; n <= spec.Images; n++ {
			sopUID := DeterministicUID(fmt.Sprintf("%s/series/%d/instance/%d", key, spec.SeriesNumber, n))
			z := -100.0 + float64(n-1)*params.SpacingBetweenSlices

			metadata := []*dicom.Element{
				mustNewElement(tag.MediaStorageSOPClassUID, []string{mrSOPClassUID}),
				mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
				mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
				mustNewElement(tag.SOPClassUID, []string{mrSOPClassUID}),
				mustNewElement(tag.SOPInstanceUID, []string{sopUID}),
				mustNewElement(tag.ImageType, spec.ImageType),
				mustNewElement(tag.StudyDate, []string{spec.StudyDate}),
				mustNewElement(tag.SeriesDate, []string{spec.StudyDate}),
				mustNewElement(tag.AcquisitionTime, []string{fmt.Sprintf("%02d%02d%02d.000000", 9+spec.SeriesNumber%10, n%60, (n*7)%60)}),
				mustNewElement(tag.Modality, []string{"MR"}),
				mustNewElement(tag.Manufacturer, []string{params.Scanner.Manufacturer}),
				mustNewElement(tag.ManufacturerModelName, []string{params.Scanner.Model}),
				mustNewElement(tag.StudyDescription, []string{spec.StudyDescription}),
				mustNewElement(tag.SeriesDescription, []string{spec.SeriesDescription}),
				mustNewElement(tag.PatientName, []string{spec.PatientName}),
				mustNewElement(tag.PatientID, []string{spec.PatientID}),
				mustNewElement(tag.PatientSex, []string{spec.PatientSex}),
				mustNewElement(tag.PatientAge, []string{spec.PatientAge}),
				mustNewElement(tag.SliceThickness, []string{ds(params.SliceThickness)}),
				mustNewElement(tag.RepetitionTime, []string{ds(params.RepetitionTime)}),
				mustNewElement(tag.EchoTime, []string{ds(params.EchoTime)}),
				mustNewElement(tag.ImagingFrequency, []string{ds(params.ImagingFrequency)}),
				mustNewElement(tag.MagneticFieldStrength, []string{ds(params.Scanner.FieldStrength)}),
				mustNewElement(tag.SpacingBetweenSlices, []string{ds(params.SpacingBetweenSlices)}),
				mustNewElement(tag.ProtocolName, []string{spec.ProtocolName}),
				mustNewElement(tag.FlipAngle, []string{ds(params.FlipAngle)}),
				mustNewElement(tag.StudyInstanceUID, []string{studyUID}),
				mustNewElement(tag.SeriesInstanceUID, []string{seriesUID}),
				mustNewElement(tag.StudyID, []string{spec.StudyID}),
				mustNewElement(tag.SeriesNumber, []string{fmt.Sprintf("%d", spec.SeriesNumber)}),
				mustNewElement(tag.InstanceNumber, []string{fmt.Sprintf("%d", n)}),
				mustNewElement(tag.ImagePositionPatient, []string{"-100", "-100", ds(z)}),
				mustNewElement(tag.ImageOrientationPatient, []string{"1", "0", "0", "0", "1", "0"}),
				mustNewElement(tag.FrameOfReferenceUID, []string{frameOfReferenceUID}),
				mustNewElement(tag.SliceLocation, []string{ds(z)}),
				mustNewElement(tag.SamplesPerPixel, []int{1}),
				mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
				mustNewElement(tag.Rows, []int{opts.Height}),
				mustNewElement(tag.Columns, []int{opts.Width}),
				mustNewElement(tag.PixelSpacing, []string{ds(params.PixelSpacing), ds(params.PixelSpacing)}),
				mustNewElement(tag.BitsAllocated, []int{16}),
				mustNewElement(tag.BitsStored, []int{12}),
				mustNewElement(tag.HighBit, []int{11}),
				mustNewElement(tag.PixelRepresentation, []int{0}),
				mustNewElement(tag.WindowCenter, []string{ds(params.WindowCenter)}),
				mustNewElement(tag.WindowWidth, []string{ds(params.WindowWidth)}),
			}
			if spec.PatientBirthDate != "" {
				metadata = append(metadata, mustNewElement(tag.PatientBirthDate, []string{spec.PatientBirthDate}))
			}
			if hasQuirk(opts.Quirks, QuirkSpecialChars) {
				metadata = append(metadata, mustNewElement(tag.SpecificCharacterSet, []string{"ISO_IR 192"}))
			}
			if len(omit) > 0 {
				kept := metadata[:0]
				for _, elem := range metadata {
					if !omit[elem.Tag] {
						kept = append(kept, elem)
					}
				}
				metadata = kept
			}
			var writeOpts []dicom.WriteOption
			if opts.VendorHeaders {
				if private := vendorElements(params.Scanner.Manufacturer, rng); len(private) > 0 {
					metadata = append(metadata, private...)
					writeOpts = []dicom.WriteOption{dicom.SkipVRVerification(), dicom.SkipValueTypeVerification()}
				}
			}
			sortElements(metadata)

			label := ""
			if !opts.NoLabel {
				label = fmt.Sprintf("S%d I%d", spec.SeriesNumber, n)
			}
			filePath := filepath.Join(seriesDir, fmt.Sprintf("IM%04d.dcm", n))
			tasks = append(tasks, imageTask{
				index:     len(tasks),
				width:     opts.Width,
				height:    opts.Height,
				filePath:  filePath,
				label:     label,
				pixelSeed: hashString(sopUID),
				metadata:  metadata,
				writeOpts: writeOpts,
				result: GeneratedFile{
					Path:           filePath,
					StudyUID:       studyUID,
					SeriesUID:      seriesUID,
					SOPInstanceUID: sopUID,
					SeriesNumber:   spec.SeriesNumber,
					InstanceNumber: n,
				},
			})
		}
	}

	// Phase 2: write files in parallel.
	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(tasks) {
		numWorkers = len(tasks)
	}

	taskChan := make(chan imageTask, len(tasks))
	resultChan := make(chan struct {
		index int
		err   error
	}, len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				err := writeImage(task)
				resultChan <- struct {
					index int
					err   error
				}{task.index, err}
			}
		}()
	}

	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	var firstErr error
	for result := range resultChan {
		if result.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("generate image %d: %w", result.index, result.err)
		}
		completed++
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(completed, len(tasks))
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	files := make([]GeneratedFile, len(tasks))
	for i, task := range tasks {
		files[i] = task.result
	}
	return files, nil
}

// writeImage renders the pixel data of one image and writes the file.
func writeImage(task imageTask) error {
	width, height := task.width, task.height
	rng := randv2.New(randv2.NewPCG(task.pixelSeed, task.pixelSeed))

	const maxValue = 4095
	cx, cy := float64(width)/2, float64(height)/2
	maxDist := math.Sqrt(cx*cx + cy*cy)

	nativeFrame := frame.NewNativeFrame[uint16](16, height, width, width*height, 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			dist := math.Sqrt(dx*dx+dy*dy) / maxDist
			v := 2048 + (1.0-dist)*maxValue*0.3 + (rng.Float64()-0.5)*maxValue*0.2
			nativeFrame.RawData[y*width+x] = uint16(math.Max(0, math.Min(maxValue, v)))
		}
	}
	drawLabel(nativeFrame, width, height, task.label, maxValue)

	pixelData := dicom.PixelDataInfo{
		Frames: []*frame.Frame{{Encapsulated: false, NativeData: nativeFrame}},
	}
	elements := make([]*dicom.Element, len(task.metadata)+1)
	copy(elements, task.metadata)
	elements[len(task.metadata)] = mustNewElement(tag.PixelData, pixelData)

	f, err := os.Create(task.filePath)
	if err != nil {
		return err
	}
	if err := dicom.Write(f, dicom.Dataset{Elements: elements}, task.writeOpts...); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// sortElements orders elements by tag so private groups land in place.
func sortElements(elements []*dicom.Element) {
	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].Tag.Group != elements[j].Tag.Group {
			return elements[i].Tag.Group < elements[j].Tag.Group
		}
		return elements[i].Tag.Element < elements[j].Tag.Element
	})
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func sanitizePath(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
