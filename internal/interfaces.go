package internal

import (
	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// FrameWriter は出力順に並んだフレームを書き込むインターフェース
type FrameWriter interface {
	// WriteFrame はフレームnを書き込む。frameの所有権は呼び出し側に残る
	WriteFrame(n int, frame *vapoursynth.Frame) error

	// Close はバッファをフラッシュしリソースをクリーンアップする
	Close() error
}

// HeaderWriter は最初のフレームの前にクリップ情報を必要とするライター
type HeaderWriter interface {
	WriteHeader(info vapoursynth.VideoInfo, numFrames int) error
}
