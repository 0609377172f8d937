package vscore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// BlankOptions describes a constant-color clip.
type BlankOptions struct {
	Width  int
	Height int
	Format vapoursynth.Format
	FPSNum int64
	FPSDen int64
	Length int
	// Color holds one value per plane. Nil means black.
	Color []uint32
}

// Blank is a clip where every frame has the same color.
type Blank struct {
	info vapoursynth.VideoInfo
	pic  *Picture
}

// DefaultBlankOptions matches std.BlankClip: 640x480 RGB24, 24 fps, 240 frames.
func DefaultBlankOptions() BlankOptions {
	f, _ := vapoursynth.PresetFormat(vapoursynth.PresetRGB24)
	return BlankOptions{Width: 640, Height: 480, Format: f, FPSNum: 24, FPSDen: 1, Length: 240}
}

// NewBlank renders the single picture the clip is made of.
func NewBlank(opts BlankOptions) (*Blank, error) {
	if opts.Length < 0 {
		return nil, fmt.Errorf("vscore: negative blank length %d", opts.Length)
	}
	if opts.FPSNum <= 0 || opts.FPSDen <= 0 {
		return nil, fmt.Errorf("vscore: invalid blank framerate %d/%d", opts.FPSNum, opts.FPSDen)
	}
	color := opts.Color
	if color == nil {
		color = black(opts.Format)
	}
	if len(color) != opts.Format.NumPlanes {
		return nil, fmt.Errorf("vscore: %d color values for %d planes", len(color), opts.Format.NumPlanes)
	}

	pic, err := NewPicture(opts.Format, opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	for plane, v := range color {
		pic.Fill(plane, v)
	}

	return &Blank{
		info: vapoursynth.VideoInfo{
			Format:     vapoursynth.Constant(opts.Format),
			Framerate:  vapoursynth.Constant(vapoursynth.Framerate{Numerator: opts.FPSNum, Denominator: opts.FPSDen}),
			Resolution: vapoursynth.Constant(vapoursynth.Resolution{Width: opts.Width, Height: opts.Height}),
			NumFrames:  opts.Length,
		},
		pic: pic,
	}, nil
}

func black(f vapoursynth.Format) []uint32 {
	color := make([]uint32, f.NumPlanes)
	if f.ColorFamily == vapoursynth.ColorFamilyYUV && f.SampleType == vapoursynth.SampleTypeInteger {
		shift := f.BitsPerSample - 8
		color[0] = 16 << shift
		for i := 1; i < len(color); i++ {
			color[i] = 128 << shift
		}
	}
	return color
}

func (b *Blank) Info() vapoursynth.VideoInfo { return b.info }

func (b *Blank) Render(int) (*Picture, error) { return b.pic, nil }

// ParseBlank parses a clip description of the form
//
//	WIDTHxHEIGHT[@NUM[/DEN]][:LENGTH][,FORMAT[,C0[,C1,C2]]]
//
// e.g. "640x480@30000/1001:240,YUV420P8". Missing parts keep the defaults.
func ParseBlank(s string) (BlankOptions, error) {
	opts := DefaultBlankOptions()
	if s == "" {
		return opts, nil
	}

	fields := strings.Split(s, ",")
	clip := fields[0]

	if i := strings.IndexByte(clip, ':'); i >= 0 {
		length, err := strconv.Atoi(clip[i+1:])
		if err != nil {
			return opts, fmt.Errorf("invalid length in %q: %w", s, err)
		}
		opts.Length = length
		clip = clip[:i]
	}
	if i := strings.IndexByte(clip, '@'); i >= 0 {
		fps := clip[i+1:]
		clip = clip[:i]
		num, den, found := strings.Cut(fps, "/")
		var err error
		if opts.FPSNum, err = strconv.ParseInt(num, 10, 64); err != nil {
			return opts, fmt.Errorf("invalid framerate in %q: %w", s, err)
		}
		opts.FPSDen = 1
		if found {
			if opts.FPSDen, err = strconv.ParseInt(den, 10, 64); err != nil {
				return opts, fmt.Errorf("invalid framerate in %q: %w", s, err)
			}
		}
	}
	if clip != "" {
		w, h, found := strings.Cut(clip, "x")
		if !found {
			return opts, fmt.Errorf("invalid size in %q, want WIDTHxHEIGHT", s)
		}
		var err error
		if opts.Width, err = strconv.Atoi(w); err != nil {
			return opts, fmt.Errorf("invalid width in %q: %w", s, err)
		}
		if opts.Height, err = strconv.Atoi(h); err != nil {
			return opts, fmt.Errorf("invalid height in %q: %w", s, err)
		}
	}

	if len(fields) > 1 {
		f, ok := vapoursynth.PresetFormatByName(fields[1])
		if !ok {
			return opts, fmt.Errorf("unknown format %q", fields[1])
		}
		opts.Format = f
	}
	if len(fields) > 2 {
		for _, c := range fields[2:] {
			v, err := strconv.ParseUint(c, 10, 32)
			if err != nil {
				return opts, fmt.Errorf("invalid color in %q: %w", s, err)
			}
			opts.Color = append(opts.Color, uint32(v))
		}
		if len(opts.Color) != opts.Format.NumPlanes {
			return opts, errors.New("color needs one value per plane")
		}
	}
	return opts, nil
}
