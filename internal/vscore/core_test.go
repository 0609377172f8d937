package vscore

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// counter renders frame n filled with byte(n), after a random delay.
type counter struct {
	length int
	delay  time.Duration
	mu     sync.Mutex
	rng    *rand.Rand
}

func (c *counter) Info() vapoursynth.VideoInfo {
	f, _ := vapoursynth.PresetFormat(vapoursynth.PresetGray8)
	return vapoursynth.VideoInfo{
		Format:     vapoursynth.Constant(f),
		Framerate:  vapoursynth.Constant(vapoursynth.Framerate{Numerator: 25, Denominator: 1}),
		Resolution: vapoursynth.Constant(vapoursynth.Resolution{Width: 8, Height: 4}),
		NumFrames:  c.length,
	}
}

func (c *counter) Render(n int) (*Picture, error) {
	if n == 13 {
		return nil, errors.New("unlucky frame")
	}
	if c.delay > 0 {
		c.mu.Lock()
		d := time.Duration(c.rng.Int63n(int64(c.delay)))
		c.mu.Unlock()
		time.Sleep(d)
	}
	p, err := NewPicture(c.Info().Format.Value, 8, 4)
	if err != nil {
		return nil, err
	}
	p.Fill(0, uint32(n))
	return p, nil
}

func newCounterNode(t *testing.T, workers int, delay time.Duration) (*Core, *vapoursynth.Node) {
	t.Helper()
	core := New(Options{Workers: workers})
	node, err := core.NewNode(&counter{length: 50, delay: delay, rng: rand.New(rand.NewSource(7))})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return core, node
}

func TestCoreGetFrame(t *testing.T) {
	core, node := newCounterNode(t, 1, 0)

	frame, err := node.GetFrame(5)
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if frame.Stride(0) != strideAlign {
		t.Fatalf("stride = %d, want %d", frame.Stride(0), strideAlign)
	}
	if row := frame.Row(0, 3); len(row) != 8 || row[7] != 5 {
		t.Fatalf("row = %v", row)
	}
	frame.Close()
	node.Close()

	if s := core.Stats(); s != (Stats{}) {
		t.Fatalf("stats after close = %+v", s)
	}
}

func TestCoreGetFrameErrors(t *testing.T) {
	_, node := newCounterNode(t, 1, 0)
	defer node.Close()

	tests := []struct {
		n    int
		want string
	}{
		{50, "Requested frame 50 out of range"},
		{13, "unlucky frame"},
	}
	for _, tt := range tests {
		_, err := node.GetFrame(tt.n)
		var fe *vapoursynth.GetFrameError
		if !errors.As(err, &fe) || fe.Message() != tt.want {
			t.Fatalf("GetFrame(%d) err = %v, want %q", tt.n, err, tt.want)
		}
	}
}

func TestCoreGetFrameTruncatesMessage(t *testing.T) {
	core, node := newCounterNode(t, 1, 0)
	defer node.Close()

	buf := make([]byte, 8)
	if ref := core.GetFrame(99, 0x11, buf); ref != 0 {
		t.Fatalf("ref = %#x", ref)
	}
	if got := string(buf[:7]); got != "Request" || buf[7] != 0 {
		t.Fatalf("buf = %q", buf)
	}
}

func TestCoreAsync(t *testing.T) {
	core, node := newCounterNode(t, 4, 2*time.Millisecond)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		node.GetFrameAsync(i, func(frame *vapoursynth.Frame, err error, n int, _ *vapoursynth.Node) {
			defer wg.Done()
			if n == 13 {
				if err == nil {
					t.Errorf("frame 13 should fail")
				}
				return
			}
			if err != nil {
				t.Errorf("frame %d: %v", n, err)
				return
			}
			if got := frame.Data(0)[0]; int(got) != n {
				t.Errorf("frame %d has data %d", n, got)
			}
			frame.Close()
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		})
	}
	node.Close()
	wg.Wait()
	core.Wait()

	if len(order) != 49 {
		t.Fatalf("delivered %d frames, want 49", len(order))
	}
	if s := core.Stats(); s != (Stats{}) {
		t.Fatalf("stats after drain = %+v", s)
	}
}

func TestCoreUnknownReference(t *testing.T) {
	core := New(Options{})
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		} else if msg := fmt.Sprint(r); msg != "vscore: release of unknown node reference 0x99" {
			t.Fatalf("panic = %q", msg)
		}
	}()
	core.FreeNode(0x99)
}

func TestCoreStatsSharedNode(t *testing.T) {
	core, node := newCounterNode(t, 1, 0)
	clone := node.Clone()
	if s := core.Stats(); s.NodeRefs != 2 || s.Nodes != 1 {
		t.Fatalf("stats = %+v", s)
	}
	node.Close()
	clone.Close()
}
