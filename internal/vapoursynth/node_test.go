package vapoursynth

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
)

func mustPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", want)
		}
		if msg, ok := r.(string); ok && !strings.Contains(msg, want) {
			t.Fatalf("panic = %q, want it to contain %q", msg, want)
		}
	}()
	fn()
}

func newTestNode(t *testing.T, m *mockEngine) *Node {
	t.Helper()
	node, err := NewNode(m, m.newRef())
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return node
}

func TestNewNodeNullRef(t *testing.T) {
	m := newMockEngine()
	node, err := NewNode(m, 0)
	if node != nil || !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("NewNode(0) = %v, %v", node, err)
	}
	if _, released := m.counts(); released != 0 {
		t.Fatalf("null reference released %d times", released)
	}
}

func TestNewNodeNilEngine(t *testing.T) {
	if _, err := NewNode(nil, 1); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("NewNode(nil) err = %v", err)
	}
}

func TestNewNodeInvalidInfoReleases(t *testing.T) {
	tests := []struct {
		name string
		edit func(*VideoInfo)
	}{
		{"negative frames", func(vi *VideoInfo) { vi.NumFrames = -1 }},
		{"zero width", func(vi *VideoInfo) { vi.Resolution = Constant(Resolution{Width: 0, Height: 2}) }},
		{"zero fps", func(vi *VideoInfo) { vi.Framerate = Constant(Framerate{Numerator: 0, Denominator: 1}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockEngine()
			tt.edit(&m.info)
			ref := m.newRef()
			node, err := NewNode(m, ref)
			if node != nil || !errors.Is(err, ErrInvalidNode) {
				t.Fatalf("NewNode = %v, %v", node, err)
			}
			if got := m.freedRefs[ref]; got != 1 {
				t.Fatalf("reference released %d times, want 1", got)
			}
		})
	}
}

func TestNewNodeVariableInfo(t *testing.T) {
	m := newMockEngine()
	m.info.Resolution = Variable[Resolution]()
	m.info.Framerate = Variable[Framerate]()
	m.info.Format = Variable[Format]()
	node := newTestNode(t, m)
	defer node.Close()

	if _, constant := node.Info().Resolution.Get(); constant {
		t.Fatal("resolution reported as constant")
	}
}

func TestNodeCloseIdempotent(t *testing.T) {
	m := newMockEngine()
	node := newTestNode(t, m)
	node.Close()
	node.Close()
	if _, released := m.counts(); released != 1 {
		t.Fatalf("released %d times, want 1", released)
	}
	mustPanic(t, "closed node", func() { node.Info() })
	mustPanic(t, "closed node", func() { node.Clone() })
}

func TestCloneRefcountBalance(t *testing.T) {
	m := newMockEngine()
	rng := rand.New(rand.NewSource(1))

	live := []*Node{newTestNode(t, m)}
	for i := 0; i < 1000; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			j := rng.Intn(len(live))
			live[j].Close()
			live = append(live[:j], live[j+1:]...)
			continue
		}
		if len(live) == 0 {
			live = append(live, newTestNode(t, m))
			continue
		}
		live = append(live, live[rng.Intn(len(live))].Clone())
	}
	for _, n := range live {
		n.Close()
	}

	acquired, released := m.counts()
	if acquired != released {
		t.Fatalf("acquired %d, released %d", acquired, released)
	}
	if m.liveNodes() != 0 {
		t.Fatalf("%d node references leaked", m.liveNodes())
	}
}

func TestCloneSurvivesOriginal(t *testing.T) {
	m := newMockEngine()
	node := newTestNode(t, m)
	clone := node.Clone()
	node.Close()

	if got := clone.Info().NumFrames; got != 100 {
		t.Fatalf("NumFrames = %d", got)
	}
	clone.Close()
	if m.liveNodes() != 0 {
		t.Fatal("references leaked")
	}
}

func TestGetFrame(t *testing.T) {
	m := newMockEngine()
	node := newTestNode(t, m)
	defer node.Close()

	frame, err := node.GetFrame(7)
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if m.lastBufLen != ErrorBufferSize {
		t.Fatalf("error buffer len = %d, want %d", m.lastBufLen, ErrorBufferSize)
	}
	if got := frame.Data(0)[0]; got != 7 {
		t.Fatalf("frame data = %d, want 7", got)
	}
	if row := frame.Row(0, 1); len(row) != 4 {
		t.Fatalf("row len = %d, want 4", len(row))
	}
	frame.Close()
	frame.Close()
	if m.liveFrames() != 0 {
		t.Fatal("frame leaked")
	}
	mustPanic(t, "closed frame", func() { frame.Width(0) })
}

func TestGetFrameError(t *testing.T) {
	m := newMockEngine()
	m.failFrame = func(n int32) string {
		if n == 9999 {
			return "no such frame"
		}
		return ""
	}
	node := newTestNode(t, m)
	defer node.Close()

	frame, err := node.GetFrame(9999)
	if frame != nil {
		t.Fatal("expected nil frame")
	}
	var fe *GetFrameError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T, want *GetFrameError", err)
	}
	if fe.Message() != "no such frame" || fe.Borrowed() {
		t.Fatalf("Message = %q, Borrowed = %v", fe.Message(), fe.Borrowed())
	}
}

func TestFrameNumberRange(t *testing.T) {
	m := newMockEngine()
	node := newTestNode(t, m)
	defer node.Close()

	limit := int64(math.MaxInt32)
	tooBig := int(limit + 1)
	mustPanic(t, "out of the engine's 32-bit range", func() { node.GetFrame(tooBig) })
	mustPanic(t, "out of the engine's 32-bit range", func() { node.GetFrame(-1) })
	mustPanic(t, "out of the engine's 32-bit range", func() {
		node.GetFrameAsync(tooBig, func(*Frame, error, int, *Node) {})
	})
	if pendingRequests() != 0 {
		t.Fatal("rejected request was registered")
	}
	acquired, released := m.counts()
	if acquired-released != 1 {
		t.Fatalf("rejected request changed refcount: acquired %d released %d", acquired, released)
	}
}
