package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
	"github.com/Azunyan1111/go-vapoursynth/internal/vscore"
)

// ramp renders frame n filled with byte(n). Frames finish out of order.
type ramp struct {
	length int
	failAt int
	// frames from gateFrom block until gate is closed
	gate     chan struct{}
	gateFrom int
}

func (r *ramp) Info() vapoursynth.VideoInfo {
	f, _ := vapoursynth.PresetFormat(vapoursynth.PresetGray8)
	return vapoursynth.VideoInfo{
		Format:     vapoursynth.Constant(f),
		Framerate:  vapoursynth.Constant(vapoursynth.Framerate{Numerator: 25, Denominator: 1}),
		Resolution: vapoursynth.Constant(vapoursynth.Resolution{Width: 8, Height: 4}),
		NumFrames:  r.length,
	}
}

func (r *ramp) Render(n int) (*vscore.Picture, error) {
	if r.failAt > 0 && n == r.failAt {
		return nil, fmt.Errorf("broken frame %d", n)
	}
	if r.gate != nil && n >= r.gateFrom {
		<-r.gate
	}
	time.Sleep(time.Duration((n*7)%5) * time.Millisecond)
	p, err := vscore.NewPicture(r.Info().Format.Value, 8, 4)
	if err != nil {
		return nil, err
	}
	p.Fill(0, uint32(n))
	return p, nil
}

// recorder remembers which frames it got and their first byte.
type recorder struct {
	mu       sync.Mutex
	order    []int
	values   []byte
	header   int
	failAt   int
	onWrite  func(n int)
}

func (r *recorder) WriteHeader(_ vapoursynth.VideoInfo, numFrames int) error {
	r.header = numFrames
	return nil
}

func (r *recorder) WriteFrame(n int, frame *vapoursynth.Frame) error {
	if r.failAt > 0 && n == r.failAt {
		return errors.New("disk full")
	}
	r.mu.Lock()
	r.order = append(r.order, n)
	r.values = append(r.values, frame.Row(0, 0)[0])
	r.mu.Unlock()
	if r.onWrite != nil {
		r.onWrite(n)
	}
	return nil
}

func (r *recorder) Close() error { return nil }

func newRampNode(t *testing.T, src *ramp) (*vscore.Core, *vapoursynth.Node) {
	t.Helper()
	core := vscore.New(vscore.Options{Workers: 4})
	node, err := core.NewNode(src)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return core, node
}

// checkReleased closes node and fails if the core still holds references.
func checkReleased(t *testing.T, core *vscore.Core, node *vapoursynth.Node) {
	t.Helper()
	node.Close()
	core.Wait()
	if st := core.Stats(); st.NodeRefs != 0 || st.FrameRefs != 0 || st.Pending != 0 {
		t.Fatalf("leaked references: %+v", st)
	}
}

func seq(from, to int) []int {
	var s []int
	for i := from; i <= to; i++ {
		s = append(s, i)
	}
	return s
}

func TestPipeOrder(t *testing.T) {
	tests := []struct {
		name     string
		sync     bool
		requests int
		start    int
		end      int
	}{
		{"async", false, 8, 0, -1},
		{"async single request", false, 1, 0, -1},
		{"async more requests than frames", false, 100, 0, -1},
		{"async range", false, 4, 3, 7},
		{"sync", true, 0, 0, -1},
		{"sync range", true, 0, 10, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, node := newRampNode(t, &ramp{length: 30})
			w := &recorder{}
			p := &Pipe{Node: node, Writer: w, Start: tt.start, End: tt.end, Requests: tt.requests, Sync: tt.sync}
			stats, err := p.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			end := tt.end
			if end < 0 {
				end = 29
			}
			want := seq(tt.start, end)
			if diff := cmp.Diff(want, w.order); diff != "" {
				t.Fatalf("frame order (-want +got):\n%s", diff)
			}
			for i, v := range w.values {
				if int(v) != want[i] {
					t.Fatalf("frame %d has value %d", want[i], v)
				}
			}
			if stats.Written != len(want) || stats.Dropped != 0 {
				t.Fatalf("stats = %+v", stats)
			}
			if w.header != len(want) {
				t.Fatalf("header got %d frames, want %d", w.header, len(want))
			}
			checkReleased(t, core, node)
		})
	}
}

func TestPipeRange(t *testing.T) {
	core, node := newRampNode(t, &ramp{length: 5})
	defer checkReleased(t, core, node)

	for _, tt := range []struct{ start, end int }{{5, -1}, {-1, 3}, {3, 2}, {0, 5}} {
		p := &Pipe{Node: node, Writer: &recorder{}, Start: tt.start, End: tt.end}
		if _, _, err := p.Range(); err == nil {
			t.Errorf("Range(%d, %d) should fail", tt.start, tt.end)
		}
	}
	p := &Pipe{Node: node, Writer: &recorder{}, End: -1}
	start, end, err := p.Range()
	if err != nil || start != 0 || end != 4 {
		t.Fatalf("Range() = %d, %d, %v", start, end, err)
	}
}

func TestPipeFrameError(t *testing.T) {
	for _, sync := range []bool{false, true} {
		t.Run(fmt.Sprintf("sync=%v", sync), func(t *testing.T) {
			core, node := newRampNode(t, &ramp{length: 40, failAt: 10})
			w := &recorder{}
			p := &Pipe{Node: node, Writer: w, End: -1, Requests: 6, Sync: sync}
			stats, err := p.Run(context.Background())
			if err == nil {
				t.Fatal("Run should fail")
			}
			var fe *vapoursynth.GetFrameError
			if !errors.As(err, &fe) {
				t.Fatalf("error %v does not wrap GetFrameError", err)
			}
			if fe.Borrowed() {
				t.Fatal("error escaping the pipe must be owned")
			}
			if !strings.Contains(err.Error(), "frame 10") || !strings.Contains(fe.Message(), "broken frame 10") {
				t.Fatalf("unexpected error %q", err)
			}
			if stats.Written > 10 {
				t.Fatalf("wrote %d frames past the failure", stats.Written)
			}
			checkReleased(t, core, node)
		})
	}
}

func TestPipeWriterError(t *testing.T) {
	core, node := newRampNode(t, &ramp{length: 20})
	p := &Pipe{Node: node, Writer: &recorder{failAt: 3}, End: -1, Requests: 5}
	stats, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Run error = %v", err)
	}
	if stats.Written != 3 {
		t.Fatalf("Written = %d, want 3", stats.Written)
	}
	checkReleased(t, core, node)
}

func TestPipeCancel(t *testing.T) {
	t.Run("async", func(t *testing.T) {
		src := &ramp{length: 30, gate: make(chan struct{}), gateFrom: 5}
		core, node := newRampNode(t, src)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		w := &recorder{onWrite: func(n int) {
			if n == 4 {
				cancel()
				time.AfterFunc(50*time.Millisecond, func() { close(src.gate) })
			}
		}}
		p := &Pipe{Node: node, Writer: w, End: -1, Requests: 4}
		stats, err := p.Run(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
		if stats.Written != 5 {
			t.Fatalf("Written = %d, want 5", stats.Written)
		}
		checkReleased(t, core, node)
	})

	t.Run("sync", func(t *testing.T) {
		core, node := newRampNode(t, &ramp{length: 30})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		w := &recorder{onWrite: func(n int) {
			if n == 2 {
				cancel()
			}
		}}
		p := &Pipe{Node: node, Writer: w, End: -1, Sync: true}
		stats, err := p.Run(ctx)
		if !errors.Is(err, context.Canceled) || stats.Written != 3 {
			t.Fatalf("Run = %+v, %v", stats, err)
		}
		checkReleased(t, core, node)
	})
}

func TestPipeProgress(t *testing.T) {
	core, node := newRampNode(t, &ramp{length: 3})
	var out strings.Builder
	p := &Pipe{Node: node, Writer: &recorder{}, End: -1, Progress: NewProgress(&out, 3)}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Frame: 3/3") || !strings.Contains(out.String(), "Output 3 frames") {
		t.Fatalf("progress output %q", out.String())
	}
	checkReleased(t, core, node)
}
