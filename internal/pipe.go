package internal

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// Pipe はノードのフレームを順番にFrameWriterへ流し込む
type Pipe struct {
	Node   *vapoursynth.Node
	Writer FrameWriter

	// Start から End まで（Endを含む）を出力する。End < 0 は最終フレーム
	Start int
	End   int

	// Requests は同時に投げる非同期リクエスト数。0 は runtime.NumCPU()
	Requests int
	// Sync は GetFrame を使って1フレームずつ処理する
	Sync bool

	// Pacer が設定されていればフレームレートに合わせて出力する
	Pacer *Pacer
	// DropLate はPacer使用時に、これ以上遅れたフレームを捨てる
	DropLate time.Duration

	Progress *Progress
	Logger   *zap.Logger
}

// PipeStats は Run の結果
type PipeStats struct {
	Written int
	Dropped int
	Elapsed time.Duration
}

type frameResult struct {
	n     int
	frame *vapoursynth.Frame
	err   error
}

// Range は Start/End をノードのフレーム数で検証し、出力範囲を返す
func (p *Pipe) Range() (start, end int, err error) {
	numFrames := p.Node.Info().NumFrames
	start, end = p.Start, p.End
	if end < 0 {
		end = numFrames - 1
	}
	if start < 0 || start >= numFrames {
		return 0, 0, fmt.Errorf("start frame %d out of range (clip has %d frames)", start, numFrames)
	}
	if end >= numFrames || end < start {
		return 0, 0, fmt.Errorf("end frame %d out of range (start %d, clip has %d frames)", end, start, numFrames)
	}
	return start, end, nil
}

// Run はフレームを出力する。ctx がキャンセルされると投げたリクエストの完了を待って終了する
func (p *Pipe) Run(ctx context.Context) (PipeStats, error) {
	var stats PipeStats
	begin := time.Now()

	start, end, err := p.Range()
	if err != nil {
		return stats, err
	}
	logger := p.Logger
	if logger == nil {
		logger = Logger()
	}

	info := p.Node.Info()
	if hw, ok := p.Writer.(HeaderWriter); ok {
		if err := hw.WriteHeader(info, end-start+1); err != nil {
			return stats, fmt.Errorf("failed to write header: %w", err)
		}
	}
	fps, _ := info.Framerate.Get()

	output := func(n int, frame *vapoursynth.Frame) error {
		defer frame.Close()
		if p.Pacer != nil {
			ts := FrameTimestampMs(n-start, fps)
			if p.Pacer.ShouldDrop(ts, p.DropLate) {
				stats.Dropped++
				return nil
			}
			if err := p.Pacer.Wait(ctx, ts); err != nil {
				return err
			}
		}
		if err := p.Writer.WriteFrame(n, frame); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", n, err)
		}
		stats.Written++
		if p.Progress != nil {
			p.Progress.Frame()
		}
		return nil
	}

	logger.Debug("pipe started",
		zap.Int("start", start), zap.Int("end", end),
		zap.Bool("sync", p.Sync), zap.Stringer("info", info))

	if p.Sync {
		err = p.runSync(ctx, start, end, output)
	} else {
		err = p.runAsync(ctx, start, end, output)
	}
	stats.Elapsed = time.Since(begin)
	if p.Progress != nil && err == nil {
		p.Progress.Done()
	}
	return stats, err
}

func (p *Pipe) runSync(ctx context.Context, start, end int, output func(int, *vapoursynth.Frame) error) error {
	for n := start; n <= end; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := p.Node.GetFrame(n)
		if err != nil {
			return fmt.Errorf("failed to retrieve frame %d: %w", n, err)
		}
		if err := output(n, frame); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipe) runAsync(ctx context.Context, start, end int, output func(int, *vapoursynth.Frame) error) error {
	requests := p.Requests
	if requests <= 0 {
		requests = runtime.NumCPU()
	}
	if total := end - start + 1; requests > total {
		requests = total
	}

	// 同時リクエスト数分のバッファがあるので、コールバックはブロックしない
	results := make(chan frameResult, requests)
	done := func(frame *vapoursynth.Frame, err error, n int, _ *vapoursynth.Node) {
		var fe *vapoursynth.GetFrameError
		if errors.As(err, &fe) {
			err = fe.Owned()
		}
		results <- frameResult{n: n, frame: frame, err: err}
	}

	next, written, inflight := start, start, 0
	request := func() {
		p.Node.GetFrameAsync(next, done)
		next++
		inflight++
	}
	for next <= end && inflight < requests {
		request()
	}

	pending := make(map[int]*vapoursynth.Frame)
	var firstErr error
loop:
	for written <= end {
		select {
		case <-ctx.Done():
			firstErr = ctx.Err()
			break loop
		case r := <-results:
			inflight--
			if r.err != nil {
				firstErr = fmt.Errorf("failed to retrieve frame %d: %w", r.n, r.err)
				break loop
			}
			pending[r.n] = r.frame

			for {
				frame, ok := pending[written]
				if !ok {
					break
				}
				delete(pending, written)
				if err := output(written, frame); err != nil {
					firstErr = err
					break loop
				}
				written++
				if next <= end {
					request()
				}
			}
		}
	}

	// 投げたリクエストは必ず完了する。残りを回収して解放する
	for inflight > 0 {
		r := <-results
		inflight--
		if r.frame != nil {
			r.frame.Close()
		}
	}
	for _, frame := range pending {
		frame.Close()
	}
	return firstErr
}
