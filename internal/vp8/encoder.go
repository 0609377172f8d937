// Package vp8 encodes engine frames with libvpx and writes them to WebM or a
// WHIP session.
package vp8

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/Azunyan1111/libvpx-go/vpx"

	"github.com/Azunyan1111/go-vapoursynth/internal"
	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// forceKeyframe is VPX_EFLAG_FORCE_KF.
const forceKeyframe = 1

// Options configures an Encoder.
type Options struct {
	Width        int
	Height       int
	Framerate    vapoursynth.Framerate
	BitrateKbps  uint
	KeyframeDist uint
}

type Encoder struct {
	ctx    *vpx.CodecCtx
	img    *vpx.Image
	width  int
	height int
	pts    int64

	keyframeRequested atomic.Bool
}

func NewEncoder(opts Options) (*Encoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.Width%2 != 0 || opts.Height%2 != 0 {
		return nil, fmt.Errorf("vp8: invalid size %dx%d, dimensions must be even", opts.Width, opts.Height)
	}
	fps := opts.Framerate
	if fps.Numerator <= 0 || fps.Denominator <= 0 {
		return nil, fmt.Errorf("vp8: invalid framerate %s", fps)
	}
	bitrate := opts.BitrateKbps
	if bitrate == 0 {
		bitrate = 1000
	}
	kfDist := opts.KeyframeDist
	if kfDist == 0 {
		kfDist = 30
	}

	ctx := vpx.NewCodecCtx()
	if ctx == nil {
		return nil, fmt.Errorf("failed to create codec context")
	}

	iface := vpx.EncoderIfaceVP8()
	if iface == nil {
		vpx.CodecDestroy(ctx)
		return nil, fmt.Errorf("failed to get VP8 encoder interface")
	}

	cfg := &vpx.CodecEncCfg{}
	if err := vpx.Error(vpx.CodecEncConfigDefault(iface, cfg, 0)); err != nil {
		vpx.CodecDestroy(ctx)
		return nil, fmt.Errorf("failed to get default encoder config: %w", err)
	}
	cfg.Deref()

	// Timebase is one frame, so pts counts frames.
	cfg.GW = uint32(opts.Width)
	cfg.GH = uint32(opts.Height)
	cfg.GTimebase = vpx.Rational{Num: int32(fps.Denominator), Den: int32(fps.Numerator)}
	cfg.RcTargetBitrate = uint32(bitrate)
	cfg.GPass = vpx.RcOnePass
	cfg.RcEndUsage = vpx.Cbr
	cfg.KfMode = vpx.KfAuto
	cfg.KfMaxDist = uint32(kfDist)
	numThreads := runtime.NumCPU()
	if numThreads > 4 {
		numThreads = 4
	}
	cfg.GThreads = uint32(numThreads)
	cfg.GLagInFrames = 0
	cfg.RcMinQuantizer = 4
	cfg.RcMaxQuantizer = 48
	cfg.GProfile = 0

	if err := vpx.Error(vpx.CodecEncInitVer(ctx, iface, cfg, 0, vpx.EncoderABIVersion)); err != nil {
		vpx.CodecDestroy(ctx)
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}

	img := vpx.ImageAlloc(nil, vpx.ImageFormatI420, uint32(opts.Width), uint32(opts.Height), 1)
	if img == nil {
		vpx.CodecDestroy(ctx)
		return nil, fmt.Errorf("failed to allocate image")
	}
	img.Deref()

	internal.DebugLog("VP8Encoder: %dx%d fps=%s bitrate=%dkbps threads=%d\n",
		opts.Width, opts.Height, fps, bitrate, numThreads)

	return &Encoder{ctx: ctx, img: img, width: opts.Width, height: opts.Height}, nil
}

// RequestKeyframe makes the next encoded frame a keyframe. Safe to call from
// any goroutine.
func (e *Encoder) RequestKeyframe() {
	e.keyframeRequested.Store(true)
}

func (e *Encoder) planes() (y, u, v []byte, yStride, uStride, vStride int) {
	h := int(e.img.DH)
	yStride = int(e.img.Stride[vpx.PlaneY])
	uStride = int(e.img.Stride[vpx.PlaneU])
	vStride = int(e.img.Stride[vpx.PlaneV])
	y = unsafe.Slice((*byte)(unsafe.Pointer(e.img.Planes[vpx.PlaneY])), yStride*h)
	u = unsafe.Slice((*byte)(unsafe.Pointer(e.img.Planes[vpx.PlaneU])), uStride*h/2)
	v = unsafe.Slice((*byte)(unsafe.Pointer(e.img.Planes[vpx.PlaneV])), vStride*h/2)
	return
}

// EncodeFrame encodes frame and returns the compressed data, or nil if the
// encoder produced no packet yet.
func (e *Encoder) EncodeFrame(frame *vapoursynth.Frame) ([]byte, bool, error) {
	if frame.Width(0) != e.width || frame.Height(0) != e.height {
		return nil, false, fmt.Errorf("vp8: frame is %dx%d, encoder is %dx%d", frame.Width(0), frame.Height(0), e.width, e.height)
	}

	y, u, v, ys, us, vs := e.planes()
	dst := i420{y: y, u: u, v: v, yStride: ys, uStride: us, vStride: vs, width: e.width, height: e.height}
	if err := dst.fill(frame); err != nil {
		return nil, false, err
	}

	var err error
	if e.keyframeRequested.Swap(false) {
		err = vpx.Error(vpx.CodecEncode(e.ctx, e.img, vpx.CodecPts(e.pts), 1, forceKeyframe, vpx.DlRealtime))
	} else {
		err = vpx.Error(vpx.CodecEncode(e.ctx, e.img, vpx.CodecPts(e.pts), 1, 0, vpx.DlRealtime))
	}
	if err != nil {
		detail := vpx.CodecErrorDetail(e.ctx)
		return nil, false, fmt.Errorf("failed to encode frame: %w (detail: %s)", err, detail)
	}
	e.pts++

	var iter vpx.CodecIter
	pkt := vpx.CodecGetCxData(e.ctx, &iter)
	if pkt == nil {
		return nil, false, nil
	}
	pkt.Deref()
	if pkt.Kind != vpx.CodecCxFramePkt {
		return nil, false, nil
	}
	return pkt.GetFrameData(), pkt.IsKeyframe(), nil
}

func (e *Encoder) Close() {
	if e.img != nil {
		vpx.ImageFree(e.img)
		e.img = nil
	}
	if e.ctx != nil {
		vpx.CodecDestroy(e.ctx)
		e.ctx = nil
	}
}
