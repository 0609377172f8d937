package vapoursynth

import "fmt"

// ColorFamily of a format.
type ColorFamily int

const (
	ColorFamilyGray   ColorFamily = 1000000
	ColorFamilyRGB    ColorFamily = 2000000
	ColorFamilyYUV    ColorFamily = 3000000
	ColorFamilyYCoCg  ColorFamily = 4000000
	ColorFamilyCompat ColorFamily = 9000000
)

func (c ColorFamily) String() string {
	switch c {
	case ColorFamilyGray:
		return "Gray"
	case ColorFamilyRGB:
		return "RGB"
	case ColorFamilyYUV:
		return "YUV"
	case ColorFamilyYCoCg:
		return "YCoCg"
	case ColorFamilyCompat:
		return "Compat"
	default:
		return "unknown"
	}
}

// SampleType of a format.
type SampleType int

const (
	SampleTypeInteger SampleType = 0
	SampleTypeFloat   SampleType = 1
)

// Format describes the pixel layout of a frame.
type Format struct {
	Name           string
	ID             int
	ColorFamily    ColorFamily
	SampleType     SampleType
	BitsPerSample  int
	BytesPerSample int
	SubSamplingW   int
	SubSamplingH   int
	NumPlanes      int
}

// Preset format IDs, matching VapourSynth API v3.
const (
	PresetGray8    = int(ColorFamilyGray) + 10
	PresetGray16   = int(ColorFamilyGray) + 11
	PresetYUV420P8 = int(ColorFamilyYUV) + 10
	PresetYUV422P8 = int(ColorFamilyYUV) + 11
	PresetYUV444P8 = int(ColorFamilyYUV) + 12
	PresetYUV410P8 = int(ColorFamilyYUV) + 13
	PresetYUV411P8 = int(ColorFamilyYUV) + 14
	PresetYUV440P8 = int(ColorFamilyYUV) + 15
	PresetRGB24    = int(ColorFamilyRGB) + 10
)

var presetFormats = map[int]Format{
	PresetGray8:    {Name: "Gray8", ID: PresetGray8, ColorFamily: ColorFamilyGray, BitsPerSample: 8, BytesPerSample: 1, NumPlanes: 1},
	PresetGray16:   {Name: "Gray16", ID: PresetGray16, ColorFamily: ColorFamilyGray, BitsPerSample: 16, BytesPerSample: 2, NumPlanes: 1},
	PresetYUV420P8: {Name: "YUV420P8", ID: PresetYUV420P8, ColorFamily: ColorFamilyYUV, BitsPerSample: 8, BytesPerSample: 1, SubSamplingW: 1, SubSamplingH: 1, NumPlanes: 3},
	PresetYUV422P8: {Name: "YUV422P8", ID: PresetYUV422P8, ColorFamily: ColorFamilyYUV, BitsPerSample: 8, BytesPerSample: 1, SubSamplingW: 1, NumPlanes: 3},
	PresetYUV444P8: {Name: "YUV444P8", ID: PresetYUV444P8, ColorFamily: ColorFamilyYUV, BitsPerSample: 8, BytesPerSample: 1, NumPlanes: 3},
	PresetYUV410P8: {Name: "YUV410P8", ID: PresetYUV410P8, ColorFamily: ColorFamilyYUV, BitsPerSample: 8, BytesPerSample: 1, SubSamplingW: 2, SubSamplingH: 2, NumPlanes: 3},
	PresetYUV411P8: {Name: "YUV411P8", ID: PresetYUV411P8, ColorFamily: ColorFamilyYUV, BitsPerSample: 8, BytesPerSample: 1, SubSamplingW: 2, NumPlanes: 3},
	PresetYUV440P8: {Name: "YUV440P8", ID: PresetYUV440P8, ColorFamily: ColorFamilyYUV, BitsPerSample: 8, BytesPerSample: 1, SubSamplingH: 1, NumPlanes: 3},
	PresetRGB24:    {Name: "RGB24", ID: PresetRGB24, ColorFamily: ColorFamilyRGB, BitsPerSample: 8, BytesPerSample: 1, NumPlanes: 3},
}

// PresetFormat returns one of the built-in formats.
func PresetFormat(id int) (Format, bool) {
	f, ok := presetFormats[id]
	return f, ok
}

// PresetFormatByName looks a built-in format up by its name, e.g. "YUV420P8".
func PresetFormatByName(name string) (Format, bool) {
	for _, f := range presetFormats {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// PlaneWidth returns the width of plane for a frame of the given luma width.
func (f Format) PlaneWidth(plane, width int) int {
	if plane == 0 {
		return width
	}
	return width >> f.SubSamplingW
}

// PlaneHeight returns the height of plane for a frame of the given luma height.
func (f Format) PlaneHeight(plane, height int) int {
	if plane == 0 {
		return height
	}
	return height >> f.SubSamplingH
}

// Framerate is a rational frame rate.
type Framerate struct {
	Numerator   int64
	Denominator int64
}

func (r Framerate) String() string {
	return fmt.Sprintf("%d/%d", r.Numerator, r.Denominator)
}

// Resolution in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Property is a node property that is either constant along the clip or
// varies from frame to frame.
type Property[T any] struct {
	Value    T
	Variable bool
}

// Constant wraps v as a constant property.
func Constant[T any](v T) Property[T] {
	return Property[T]{Value: v}
}

// Variable returns a property that changes frame to frame.
func Variable[T any]() Property[T] {
	return Property[T]{Variable: true}
}

// Get returns the value and whether it is constant.
func (p Property[T]) Get() (T, bool) {
	return p.Value, !p.Variable
}

// NodeFlags are engine hints attached to a node.
type NodeFlags int

const (
	// FlagNoCache marks nodes whose frames should not be cached.
	FlagNoCache NodeFlags = 1
	// FlagIsCache marks instances of the built-in cache filter.
	FlagIsCache NodeFlags = 2
	// FlagMakeLinear marks nodes that prefer linear access.
	FlagMakeLinear NodeFlags = 4
)

// VideoInfo is the metadata of a node.
type VideoInfo struct {
	Format     Property[Format]
	Framerate  Property[Framerate]
	Resolution Property[Resolution]
	NumFrames  int
	Flags      NodeFlags
}

func (vi VideoInfo) String() string {
	format := "variable"
	if f, ok := vi.Format.Get(); ok {
		format = f.Name
	}
	fps := "variable"
	if r, ok := vi.Framerate.Get(); ok {
		fps = r.String()
	}
	res := "variable"
	if r, ok := vi.Resolution.Get(); ok {
		res = fmt.Sprintf("%dx%d", r.Width, r.Height)
	}
	return fmt.Sprintf("format=%s resolution=%s fps=%s frames=%d", format, res, fps, vi.NumFrames)
}
