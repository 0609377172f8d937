package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// Y4MWriter はYUV4MPEG2形式で出力するライター
type Y4MWriter struct {
	bufWriter     *bufio.Writer
	headerWritten bool
}

// NewY4MWriter は新しいY4MWriterを作成
func NewY4MWriter(w io.Writer) *Y4MWriter {
	return &Y4MWriter{bufWriter: bufio.NewWriterSize(w, 1024*1024)}
}

// Y4MColorspace はフォーマットに対応するY4MのCタグを返す
func Y4MColorspace(f vapoursynth.Format) (string, error) {
	if f.SampleType != vapoursynth.SampleTypeInteger {
		return "", fmt.Errorf("y4m: float format %s is not supported", f.Name)
	}

	var base string
	switch f.ColorFamily {
	case vapoursynth.ColorFamilyGray:
		if f.BitsPerSample == 8 {
			return "mono", nil
		}
		return fmt.Sprintf("mono%d", f.BitsPerSample), nil
	case vapoursynth.ColorFamilyYUV:
		switch {
		case f.SubSamplingW == 1 && f.SubSamplingH == 1:
			base = "420"
		case f.SubSamplingW == 1 && f.SubSamplingH == 0:
			base = "422"
		case f.SubSamplingW == 0 && f.SubSamplingH == 0:
			base = "444"
		case f.SubSamplingW == 2 && f.SubSamplingH == 2:
			base = "410"
		case f.SubSamplingW == 2 && f.SubSamplingH == 0:
			base = "411"
		case f.SubSamplingW == 0 && f.SubSamplingH == 1:
			base = "440"
		default:
			return "", fmt.Errorf("y4m: unsupported subsampling in %s", f.Name)
		}
	default:
		return "", fmt.Errorf("y4m: only YUV and Gray clips can be written, got %s", f.ColorFamily)
	}
	if f.BitsPerSample > 8 {
		return fmt.Sprintf("%sp%d", base, f.BitsPerSample), nil
	}
	return base, nil
}

// WriteHeader はストリームヘッダーを書き込む
func (y *Y4MWriter) WriteHeader(info vapoursynth.VideoInfo, numFrames int) error {
	format, constFormat := info.Format.Get()
	res, constRes := info.Resolution.Get()
	if !constFormat || !constRes {
		return errors.New("y4m: cannot output clips with varying dimensions or format")
	}
	fps, constFPS := info.Framerate.Get()
	if !constFPS {
		fps = vapoursynth.Framerate{Numerator: 0, Denominator: 0}
	}
	cs, err := Y4MColorspace(format)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(y.bufWriter, "YUV4MPEG2 C%s W%d H%d F%d:%d Ip A0:0 XLENGTH=%d\n",
		cs, res.Width, res.Height, fps.Numerator, fps.Denominator, numFrames); err != nil {
		return fmt.Errorf("error writing Y4M header: %w", err)
	}
	y.headerWritten = true
	return nil
}

// WriteFrame はFRAMEヘッダーとプレーンを書き込む
func (y *Y4MWriter) WriteFrame(n int, frame *vapoursynth.Frame) error {
	if !y.headerWritten {
		return errors.New("y4m: header not written")
	}
	if _, err := y.bufWriter.WriteString("FRAME\n"); err != nil {
		return fmt.Errorf("error writing frame header: %w", err)
	}
	return writePlanes(y.bufWriter, frame)
}

// Close はバッファをフラッシュする
func (y *Y4MWriter) Close() error {
	return y.bufWriter.Flush()
}

// writePlanes はストライドを除いた可視領域をプレーン順に書き込む
func writePlanes(w io.Writer, frame *vapoursynth.Frame) error {
	planes := frame.Format().NumPlanes
	for plane := 0; plane < planes; plane++ {
		for row := 0; row < frame.Height(plane); row++ {
			if _, err := w.Write(frame.Row(plane, row)); err != nil {
				return fmt.Errorf("error writing plane %d: %w", plane, err)
			}
		}
	}
	return nil
}
