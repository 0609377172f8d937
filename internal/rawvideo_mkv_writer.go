package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Azunyan1111/go-vapoursynth/internal/mkvsource"
	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// RawVideoMKVWriter は非圧縮フレームをV_UNCOMPRESSEDとしてMKVに出力するライター
// フレームごとに1クラスタを書き出す
type RawVideoMKVWriter struct {
	muxer  *MatroskaMuxer
	fps    vapoursynth.Framerate
	format vapoursynth.Format
	frames int
	buf    bytes.Buffer
}

// NewRawVideoMKVWriter は新しいRawVideoMKVWriterを作成
func NewRawVideoMKVWriter(w io.Writer) *RawVideoMKVWriter {
	return &RawVideoMKVWriter{muxer: NewMatroskaMuxer(w, "matroska")}
}

// WriteHeader はトラック情報を書き込む
func (w *RawVideoMKVWriter) WriteHeader(info vapoursynth.VideoInfo, numFrames int) error {
	format, constFormat := info.Format.Get()
	res, constRes := info.Resolution.Get()
	fps, constFPS := info.Framerate.Get()
	if !constFormat || !constRes || !constFPS {
		return errors.New("mkv: cannot output clips with varying format, dimensions or framerate")
	}
	fourcc, ok := mkvsource.FourCC(format)
	if !ok {
		return fmt.Errorf("mkv: format %s has no V_UNCOMPRESSED FourCC", format.Name)
	}

	w.fps = fps
	w.format = format
	track := TrackConfig{
		CodecID:         "V_UNCOMPRESSED",
		Width:           res.Width,
		Height:          res.Height,
		ColourSpace:     fourcc,
		DefaultDuration: mkvsource.DurationFromFramerate(fps),
		Duration:        float64(FrameTimestampMs(numFrames, fps)),
	}
	DebugLog("mkv: %dx%d %s (%s) fps=%s\n", res.Width, res.Height, format.Name, fourcc, fps)
	return w.muxer.WriteHeader(track)
}

// WriteFrame はフレームをSimpleBlockとして書き込む
func (w *RawVideoMKVWriter) WriteFrame(n int, frame *vapoursynth.Frame) error {
	if f := frame.Format(); f.ID != w.format.ID {
		return fmt.Errorf("mkv: frame %d has format %s, track is %s", n, f.Name, w.format.Name)
	}
	w.buf.Reset()
	if err := writePlanes(&w.buf, frame); err != nil {
		return err
	}
	timecodeMs := uint64(FrameTimestampMs(w.frames, w.fps))
	w.frames++
	return w.muxer.WriteBlock(w.buf.Bytes(), timecodeMs, true)
}

// Close はリソースをクリーンアップ
func (w *RawVideoMKVWriter) Close() error {
	return w.muxer.Close()
}
