package internal

import (
	"fmt"
	"io"
	"time"
)

const progressInterval = 500 * time.Millisecond

// Progress はstderrに処理済みフレーム数を表示する
type Progress struct {
	w       io.Writer
	total   int
	start   time.Time
	last    time.Time
	written int
	now     func() time.Time
}

// NewProgress は新しいProgressを作成する
func NewProgress(w io.Writer, total int) *Progress {
	now := time.Now
	return &Progress{w: w, total: total, start: now(), now: now}
}

// Frame は1フレーム出力されたことを記録する
func (p *Progress) Frame() {
	p.written++
	t := p.now()
	if p.written < p.total && t.Sub(p.last) < progressInterval {
		return
	}
	p.last = t
	fmt.Fprintf(p.w, "Frame: %d/%d (%.2f fps)\r", p.written, p.total, p.fps(t))
}

// Done は最終結果を表示する
func (p *Progress) Done() {
	t := p.now()
	fmt.Fprintf(p.w, "\nOutput %d frames in %.2f seconds (%.2f fps)\n", p.written, t.Sub(p.start).Seconds(), p.fps(t))
}

func (p *Progress) fps(t time.Time) float64 {
	elapsed := t.Sub(p.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.written) / elapsed
}
