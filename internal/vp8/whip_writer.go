package vp8

import (
	"errors"
	"time"

	"github.com/pion/rtp"

	"github.com/Azunyan1111/go-vapoursynth/internal"
	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// WHIPWriter encodes frames to VP8 and sends them on a WHIP session's track.
// A picture loss report from the receiver forces the next frame to be a
// keyframe.
type WHIPWriter struct {
	session      *internal.WHIPSession
	packetizer   *internal.VP8Packetizer
	encoder      *Encoder
	fps          vapoursynth.Framerate
	frames       int
	bitrateKbps  uint
	keyframeDist uint

	// PacketsSent is the number of RTP packets written to the track.
	PacketsSent int
}

func NewWHIPWriter(session *internal.WHIPSession, bitrateKbps, keyframeDist uint) *WHIPWriter {
	return &WHIPWriter{
		session:      session,
		packetizer:   internal.NewVP8Packetizer(0),
		bitrateKbps:  bitrateKbps,
		keyframeDist: keyframeDist,
	}
}

func (w *WHIPWriter) WriteHeader(info vapoursynth.VideoInfo, _ int) error {
	enc, res, fps, err := newEncoderFor(info, w.bitrateKbps, w.keyframeDist)
	if err != nil {
		return err
	}
	w.encoder = enc
	w.fps = fps
	w.session.OnPictureLoss(enc.RequestKeyframe)
	internal.Logger().Sugar().Infof("WHIP: sending VP8 %dx%d at %s", res.Width, res.Height, fps)
	return nil
}

func (w *WHIPWriter) WriteFrame(n int, frame *vapoursynth.Frame) error {
	if w.encoder == nil {
		return errors.New("vp8: WriteFrame before WriteHeader")
	}
	data, _, err := w.encoder.EncodeFrame(frame)
	if err != nil {
		return err
	}
	timestampMs := internal.FrameTimestampMs(w.frames, w.fps)
	w.frames++
	if data == nil {
		return nil
	}
	sent, err := w.packetizer.PacketizeAndWrite(data, timestampMs, func(p *rtp.Packet) error {
		return w.session.Track.WriteRTP(p)
	})
	w.PacketsSent += sent
	if err != nil {
		return err
	}
	internal.DebugLogPeriodic("whip.write", time.Second, "WHIP: frame %d, %d packets, %d bytes\n", n, sent, len(data))
	return nil
}

// Close releases the encoder. The session is closed by its owner.
func (w *WHIPWriter) Close() error {
	w.session.OnPictureLoss(nil)
	if w.encoder != nil {
		w.encoder.Close()
		w.encoder = nil
	}
	return nil
}
