package vp8

import (
	"errors"
	"io"

	"github.com/Azunyan1111/go-vapoursynth/internal"
	"github.com/Azunyan1111/go-vapoursynth/internal/mkvsource"
	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// newEncoderFor creates an encoder sized for a clip with constant dimensions
// and framerate.
func newEncoderFor(info vapoursynth.VideoInfo, bitrateKbps, keyframeDist uint) (*Encoder, vapoursynth.Resolution, vapoursynth.Framerate, error) {
	res, constRes := info.Resolution.Get()
	fps, constFPS := info.Framerate.Get()
	if !constRes || !constFPS {
		return nil, res, fps, errors.New("vp8: cannot encode clips with varying dimensions or framerate")
	}
	enc, err := NewEncoder(Options{
		Width:        res.Width,
		Height:       res.Height,
		Framerate:    fps,
		BitrateKbps:  bitrateKbps,
		KeyframeDist: keyframeDist,
	})
	return enc, res, fps, err
}

// WebMWriter encodes frames to VP8 and muxes them into WebM.
type WebMWriter struct {
	muxer        *internal.MatroskaMuxer
	encoder      *Encoder
	fps          vapoursynth.Framerate
	frames       int
	bitrateKbps  uint
	keyframeDist uint
}

func NewWebMWriter(w io.Writer, bitrateKbps, keyframeDist uint) *WebMWriter {
	return &WebMWriter{
		muxer:        internal.NewMatroskaMuxer(w, "webm"),
		bitrateKbps:  bitrateKbps,
		keyframeDist: keyframeDist,
	}
}

func (w *WebMWriter) WriteHeader(info vapoursynth.VideoInfo, numFrames int) error {
	enc, res, fps, err := newEncoderFor(info, w.bitrateKbps, w.keyframeDist)
	if err != nil {
		return err
	}
	w.encoder = enc
	w.fps = fps
	return w.muxer.WriteHeader(internal.TrackConfig{
		CodecID:         "V_VP8",
		Width:           res.Width,
		Height:          res.Height,
		DefaultDuration: mkvsource.DurationFromFramerate(fps),
		Duration:        float64(internal.FrameTimestampMs(numFrames, fps)),
	})
}

func (w *WebMWriter) WriteFrame(n int, frame *vapoursynth.Frame) error {
	if w.encoder == nil {
		return errors.New("vp8: WriteFrame before WriteHeader")
	}
	data, keyframe, err := w.encoder.EncodeFrame(frame)
	if err != nil {
		return err
	}
	timestampMs := internal.FrameTimestampMs(w.frames, w.fps)
	w.frames++
	if data == nil {
		internal.DebugLog("webm: no packet for frame %d\n", n)
		return nil
	}
	return w.muxer.WriteBlock(data, uint64(timestampMs), keyframe)
}

func (w *WebMWriter) Close() error {
	err := w.muxer.Close()
	if w.encoder != nil {
		w.encoder.Close()
		w.encoder = nil
	}
	return err
}
