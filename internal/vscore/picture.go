package vscore

import (
	"encoding/binary"
	"fmt"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// strideAlign matches the plane alignment of the native engine.
const strideAlign = 32

// Picture is the pixel data of one rendered frame. A Picture handed to the
// Core must not be modified afterwards.
type Picture struct {
	Format  vapoursynth.Format
	Width   int
	Height  int
	Planes  [][]byte
	Strides []int
}

// NewPicture allocates a zeroed picture with aligned strides.
func NewPicture(format vapoursynth.Format, width, height int) (*Picture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("vscore: invalid picture size %dx%d", width, height)
	}
	if format.NumPlanes <= 0 || format.BytesPerSample <= 0 {
		return nil, fmt.Errorf("vscore: invalid format %q", format.Name)
	}

	p := &Picture{Format: format, Width: width, Height: height}
	for plane := 0; plane < format.NumPlanes; plane++ {
		rowBytes := format.PlaneWidth(plane, width) * format.BytesPerSample
		stride := (rowBytes + strideAlign - 1) &^ (strideAlign - 1)
		p.Strides = append(p.Strides, stride)
		p.Planes = append(p.Planes, make([]byte, stride*format.PlaneHeight(plane, height)))
	}
	return p, nil
}

// PlaneWidth returns the width of plane in pixels.
func (p *Picture) PlaneWidth(plane int) int {
	return p.Format.PlaneWidth(plane, p.Width)
}

// PlaneHeight returns the height of plane in pixels.
func (p *Picture) PlaneHeight(plane int) int {
	return p.Format.PlaneHeight(plane, p.Height)
}

// Row returns the visible bytes of one row.
func (p *Picture) Row(plane, row int) []byte {
	start := row * p.Strides[plane]
	return p.Planes[plane][start : start+p.PlaneWidth(plane)*p.Format.BytesPerSample]
}

// Fill sets every sample of plane to value.
func (p *Picture) Fill(plane int, value uint32) {
	for y := 0; y < p.PlaneHeight(plane); y++ {
		row := p.Row(plane, y)
		switch p.Format.BytesPerSample {
		case 1:
			for i := range row {
				row[i] = byte(value)
			}
		case 2:
			for i := 0; i+1 < len(row); i += 2 {
				binary.LittleEndian.PutUint16(row[i:], uint16(value))
			}
		case 4:
			for i := 0; i+3 < len(row); i += 4 {
				binary.LittleEndian.PutUint32(row[i:], value)
			}
		}
	}
}
