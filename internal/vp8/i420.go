package vp8

import (
	"fmt"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// BT.601 limited range coefficients, scaled by 256
var (
	yRTable [256]int
	yGTable [256]int
	yBTable [256]int
	uRTable [256]int
	uGTable [256]int
	uBTable [256]int
	vRTable [256]int
	vGTable [256]int
	vBTable [256]int
)

func init() {
	for i := 0; i < 256; i++ {
		yRTable[i] = 66 * i
		yGTable[i] = 129 * i
		yBTable[i] = 25 * i

		uRTable[i] = -38 * i
		uGTable[i] = -74 * i
		uBTable[i] = 112 * i

		vRTable[i] = 112 * i
		vGTable[i] = -94 * i
		vBTable[i] = -18 * i
	}
}

func clampToByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// planeReader is the part of *vapoursynth.Frame the conversions need.
type planeReader interface {
	Format() vapoursynth.Format
	Row(plane, row int) []byte
}

// i420 is a destination image with libvpx plane layout.
type i420 struct {
	y, u, v                   []byte
	yStride, uStride, vStride int
	width, height             int
}

func (d *i420) fill(src planeReader) error {
	f := src.Format()
	switch f.ID {
	case vapoursynth.PresetYUV420P8:
		d.copyYUV420(src)
	case vapoursynth.PresetGray8:
		d.copyGray(src)
	case vapoursynth.PresetRGB24:
		d.convertRGB(src)
	default:
		return fmt.Errorf("vp8: unsupported format %s (use YUV420P8, Gray8 or RGB24)", f.Name)
	}
	return nil
}

func (d *i420) copyYUV420(src planeReader) {
	for row := 0; row < d.height; row++ {
		copy(d.y[row*d.yStride:], src.Row(0, row))
	}
	for row := 0; row < d.height/2; row++ {
		copy(d.u[row*d.uStride:], src.Row(1, row))
		copy(d.v[row*d.vStride:], src.Row(2, row))
	}
}

func (d *i420) copyGray(src planeReader) {
	for row := 0; row < d.height; row++ {
		copy(d.y[row*d.yStride:], src.Row(0, row))
	}
	for row := 0; row < d.height/2; row++ {
		u := d.u[row*d.uStride : row*d.uStride+d.width/2]
		v := d.v[row*d.vStride : row*d.vStride+d.width/2]
		for i := range u {
			u[i] = 128
			v[i] = 128
		}
	}
}

// convertRGB converts planar RGB with 2x2 chroma taken from the top-left pixel.
func (d *i420) convertRGB(src planeReader) {
	for row := 0; row < d.height; row++ {
		r, g, b := src.Row(0, row), src.Row(1, row), src.Row(2, row)
		yRow := d.y[row*d.yStride:]
		for col := 0; col < d.width; col++ {
			ri, gi, bi := int(r[col]), int(g[col]), int(b[col])
			yRow[col] = clampToByte(((yRTable[ri] + yGTable[gi] + yBTable[bi] + 128) >> 8) + 16)

			if row%2 == 0 && col%2 == 0 {
				uvCol := col / 2
				d.u[(row/2)*d.uStride+uvCol] = clampToByte(((uRTable[ri] + uGTable[gi] + uBTable[bi] + 128) >> 8) + 128)
				d.v[(row/2)*d.vStride+uvCol] = clampToByte(((vRTable[ri] + vGTable[gi] + vBTable[bi] + 128) >> 8) + 128)
			}
		}
	}
}
