// Package mkvsource serves uncompressed Matroska video as a vscore source.
package mkvsource

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/remko/go-mkvparse"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
	"github.com/Azunyan1111/go-vapoursynth/internal/vscore"
)

// Matroska element IDs
const (
	idTrackEntry      mkvparse.ElementID = 0xAE
	idTrackNumber     mkvparse.ElementID = 0xD7
	idTrackType       mkvparse.ElementID = 0x83
	idCodecID         mkvparse.ElementID = 0x86
	idDefaultDuration mkvparse.ElementID = 0x23E383
	idPixelWidth      mkvparse.ElementID = 0xB0
	idPixelHeight     mkvparse.ElementID = 0xBA
	idColourSpace     mkvparse.ElementID = 0x2EB524
	idSimpleBlock     mkvparse.ElementID = 0xA3
	idBlock           mkvparse.ElementID = 0xA1
)

const (
	trackTypeVideo = 1
	codecRawVideo  = "V_UNCOMPRESSED"
)

// FourCCs maps the ColourSpace values this package reads to engine formats.
var FourCCs = map[string]int{
	"I420": vapoursynth.PresetYUV420P8,
	"Y42B": vapoursynth.PresetYUV422P8,
	"444P": vapoursynth.PresetYUV444P8,
	"Y800": vapoursynth.PresetGray8,
}

// FourCC returns the ColourSpace value for format, if it has one.
func FourCC(format vapoursynth.Format) (string, bool) {
	for cc, id := range FourCCs {
		if id == format.ID {
			return cc, true
		}
	}
	return "", false
}

var ErrNoVideoTrack = errors.New("mkvsource: no V_UNCOMPRESSED video track")

type track struct {
	number   int64
	kind     int64
	codec    string
	width    int64
	height   int64
	fourcc   string
	duration int64
}

type block struct {
	track   int64
	payload []byte
}

// indexer collects tracks and blocks while the file is parsed.
type indexer struct {
	tracks []*track
	cur    *track
	blocks []block
}

func (h *indexer) HandleMasterBegin(id mkvparse.ElementID, _ mkvparse.ElementInfo) (bool, error) {
	if id == idTrackEntry {
		h.cur = &track{}
	}
	return true, nil
}

func (h *indexer) HandleMasterEnd(id mkvparse.ElementID, _ mkvparse.ElementInfo) error {
	if id == idTrackEntry && h.cur != nil {
		h.tracks = append(h.tracks, h.cur)
		h.cur = nil
	}
	return nil
}

func (h *indexer) HandleString(id mkvparse.ElementID, value string, _ mkvparse.ElementInfo) error {
	if id == idCodecID && h.cur != nil {
		h.cur.codec = value
	}
	return nil
}

func (h *indexer) HandleInteger(id mkvparse.ElementID, value int64, _ mkvparse.ElementInfo) error {
	if h.cur == nil {
		return nil
	}
	switch id {
	case idTrackNumber:
		h.cur.number = value
	case idTrackType:
		h.cur.kind = value
	case idPixelWidth:
		h.cur.width = value
	case idPixelHeight:
		h.cur.height = value
	case idDefaultDuration:
		h.cur.duration = value
	}
	return nil
}

func (h *indexer) HandleFloat(mkvparse.ElementID, float64, mkvparse.ElementInfo) error {
	return nil
}

func (h *indexer) HandleDate(mkvparse.ElementID, time.Time, mkvparse.ElementInfo) error {
	return nil
}

func (h *indexer) HandleBinary(id mkvparse.ElementID, value []byte, _ mkvparse.ElementInfo) error {
	switch id {
	case idColourSpace:
		if h.cur != nil {
			h.cur.fourcc = string(value)
		}
	case idSimpleBlock, idBlock:
		num, payload, err := parseBlock(value)
		if err != nil {
			return err
		}
		data := make([]byte, len(payload))
		copy(data, payload)
		h.blocks = append(h.blocks, block{track: num, payload: data})
	}
	return nil
}

// parseBlock splits a (Simple)Block into its track number and frame data.
// Lacing is not supported.
func parseBlock(b []byte) (int64, []byte, error) {
	if len(b) == 0 {
		return 0, nil, errors.New("mkvsource: empty block")
	}
	length := 1
	for mask := byte(0x80); length <= 8 && b[0]&mask == 0; mask >>= 1 {
		length++
	}
	if length > 8 || len(b) < length+3 {
		return 0, nil, errors.New("mkvsource: truncated block header")
	}
	num := int64(b[0] & (0xFF >> length))
	for _, c := range b[1:length] {
		num = num<<8 | int64(c)
	}
	flags := b[length+2]
	if flags&0x06 != 0 {
		return 0, nil, fmt.Errorf("mkvsource: laced blocks are not supported (track %d)", num)
	}
	return num, b[length+3:], nil
}

// Source is an indexed raw video clip held in memory.
type Source struct {
	info   vapoursynth.VideoInfo
	format vapoursynth.Format
	width  int
	height int
	frames [][]byte
}

// Parse indexes the file at path.
func Parse(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := &indexer{}
	if err := mkvparse.Parse(f, h); err != nil {
		return nil, fmt.Errorf("mkvsource: parse %s: %w", path, err)
	}
	return h.source()
}

func (h *indexer) source() (*Source, error) {
	var video *track
	for _, t := range h.tracks {
		if t.kind == trackTypeVideo && t.codec == codecRawVideo {
			video = t
			break
		}
	}
	if video == nil {
		return nil, ErrNoVideoTrack
	}

	id, ok := FourCCs[video.fourcc]
	if !ok {
		return nil, fmt.Errorf("mkvsource: unsupported ColourSpace %q", video.fourcc)
	}
	format, _ := vapoursynth.PresetFormat(id)
	if video.width <= 0 || video.height <= 0 {
		return nil, fmt.Errorf("mkvsource: invalid size %dx%d", video.width, video.height)
	}
	if video.duration <= 0 {
		return nil, errors.New("mkvsource: track has no DefaultDuration")
	}

	s := &Source{format: format, width: int(video.width), height: int(video.height)}
	want := s.frameSize()
	for _, b := range h.blocks {
		if b.track != video.number {
			continue
		}
		if len(b.payload) != want {
			return nil, fmt.Errorf("mkvsource: frame %d has %d bytes, want %d", len(s.frames), len(b.payload), want)
		}
		s.frames = append(s.frames, b.payload)
	}

	s.info = vapoursynth.VideoInfo{
		Format:     vapoursynth.Constant(format),
		Framerate:  vapoursynth.Constant(FramerateFromDuration(video.duration)),
		Resolution: vapoursynth.Constant(vapoursynth.Resolution{Width: s.width, Height: s.height}),
		NumFrames:  len(s.frames),
	}
	return s, nil
}

func (s *Source) frameSize() int {
	size := 0
	for plane := 0; plane < s.format.NumPlanes; plane++ {
		size += s.format.PlaneWidth(plane, s.width) * s.format.PlaneHeight(plane, s.height) * s.format.BytesPerSample
	}
	return size
}

// Info implements vscore.Source.
func (s *Source) Info() vapoursynth.VideoInfo {
	return s.info
}

// Render implements vscore.Source.
func (s *Source) Render(n int) (*vscore.Picture, error) {
	if n < 0 || n >= len(s.frames) {
		return nil, fmt.Errorf("Requested frame %d out of range", n)
	}
	pic, err := vscore.NewPicture(s.format, s.width, s.height)
	if err != nil {
		return nil, err
	}
	data := s.frames[n]
	for plane := 0; plane < s.format.NumPlanes; plane++ {
		for y := 0; y < pic.PlaneHeight(plane); y++ {
			data = data[copy(pic.Row(plane, y), data):]
		}
	}
	return pic, nil
}

// Open indexes path and registers it with core.
func Open(core *vscore.Core, path string) (*vapoursynth.Node, error) {
	src, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return core.NewNode(src)
}

// DurationFromFramerate returns the DefaultDuration in nanoseconds for r.
func DurationFromFramerate(r vapoursynth.Framerate) int64 {
	return (int64(time.Second)*r.Denominator + r.Numerator/2) / r.Numerator
}

// FramerateFromDuration inverts DurationFromFramerate. Integer and NTSC
// rates, whose durations are rounded, are recognized.
func FramerateFromDuration(ns int64) vapoursynth.Framerate {
	for _, den := range []int64{1, 1001} {
		num := (int64(time.Second)*den + ns/2) / ns
		if den == 1001 {
			num = (num + 500) / 1000 * 1000
		}
		r := vapoursynth.Framerate{Numerator: num, Denominator: den}
		if num > 0 && DurationFromFramerate(r) == ns {
			return r
		}
	}
	num, den := int64(time.Second), ns
	g := gcd(num, den)
	return vapoursynth.Framerate{Numerator: num / g, Denominator: den / g}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
