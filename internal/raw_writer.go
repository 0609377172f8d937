package internal

import (
	"bufio"
	"io"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// RawStreamWriter はプレーンをそのまま連結して出力するライター
type RawStreamWriter struct {
	bufWriter *bufio.Writer
	frames    int
}

// NewRawStreamWriter は新しいRawStreamWriterを作成
func NewRawStreamWriter(w io.Writer) *RawStreamWriter {
	return &RawStreamWriter{bufWriter: bufio.NewWriterSize(w, 1024*1024)}
}

// WriteFrame はフレームを書き込む
func (r *RawStreamWriter) WriteFrame(n int, frame *vapoursynth.Frame) error {
	if err := writePlanes(r.bufWriter, frame); err != nil {
		return err
	}
	r.frames++
	DebugLogPeriodic("raw.write", pacingWaitLogInterval, "raw: wrote frame %d (%d total)\n", n, r.frames)
	return nil
}

// Close はバッファをフラッシュする
func (r *RawStreamWriter) Close() error {
	return r.bufWriter.Flush()
}
