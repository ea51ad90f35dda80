package dicomsynth

import (
	"image"
	"image/color"

	"github.com/suyashkumar/dicom/pkg/frame"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawLabel burns text into the center of a 16-bit frame, scaled to about
// 30% of the frame width, white on a black outline.
func drawLabel(nativeFrame *frame.NativeFrame[uint16], width, height int, text string, maxValue uint16) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	baseWidth := font.MeasureString(face, text).Ceil()
	const baseHeight = 13

	textImg := image.NewAlpha(image.Rect(0, 0, baseWidth, baseHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	scale := float64(width) * 0.3 / float64(baseWidth)
	if scale < 1 {
		scale = 1
	}
	sw, sh := int(float64(baseWidth)*scale), int(float64(baseHeight)*scale)
	scaled := image.NewAlpha(image.Rect(0, 0, sw, sh))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), textImg, textImg.Bounds(), draw.Over, nil)

	x0, y0 := (width-sw)/2, (height-sh)/2
	outline := max(1, sh/10)
	set := func(x, y int, v uint16) {
		if x >= 0 && x < width && y >= 0 && y < height {
			nativeFrame.RawData[y*width+x] = v
		}
	}

	for sy := 0; sy < sh; sy++ {
		for sx := 0; sx < sw; sx++ {
			if scaled.AlphaAt(sx, sy).A == 0 {
				continue
			}
			for dy := -outline; dy <= outline; dy++ {
				for dx := -outline; dx <= outline; dx++ {
					set(x0+sx+dx, y0+sy+dy, 0)
				}
			}
		}
	}
	for sy := 0; sy < sh; sy++ {
		for sx := 0; sx < sw; sx++ {
			a := scaled.AlphaAt(sx, sy).A
			if a == 0 {
				continue
			}
			set(x0+sx, y0+sy, uint16(uint32(maxValue)*uint32(a)/255))
		}
	}
}
