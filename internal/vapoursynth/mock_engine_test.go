package vapoursynth

import (
	"sync"
)

// mockEngine counts every reference it hands out and gets back.
type mockEngine struct {
	mu sync.Mutex

	info      VideoInfo
	nextRef   uintptr
	nodes     map[NodeRef]bool
	frames    map[FrameRef]int32
	acquired  int
	released  int
	freedRefs map[NodeRef]int

	frameAcquired int
	frameReleased int
	lastBufLen    int

	// failFrame returns the error text for frame n, or "" for success.
	failFrame func(n int32) string

	// deferAsync queues async requests until complete is called.
	deferAsync bool
	pending    []mockRequest
}

type mockRequest struct {
	n        int32
	ref      NodeRef
	callback FrameDoneCallback
	userData uintptr
}

var testFormat = Format{Name: "Gray8", ID: PresetGray8, ColorFamily: ColorFamilyGray, BitsPerSample: 8, BytesPerSample: 1, NumPlanes: 1}

func newMockEngine() *mockEngine {
	return &mockEngine{
		info: VideoInfo{
			Format:     Constant(testFormat),
			Framerate:  Constant(Framerate{Numerator: 60, Denominator: 1}),
			Resolution: Constant(Resolution{Width: 4, Height: 2}),
			NumFrames:  100,
		},
		nextRef:   0x1000,
		nodes:     make(map[NodeRef]bool),
		frames:    make(map[FrameRef]int32),
		freedRefs: make(map[NodeRef]int),
		failFrame: func(int32) string { return "" },
	}
}

// newRef simulates a reference obtained from the engine outside of Clone,
// e.g. a script output.
func (m *mockEngine) newRef() NodeRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocNodeLocked()
}

func (m *mockEngine) allocNodeLocked() NodeRef {
	m.nextRef++
	ref := NodeRef(m.nextRef)
	m.nodes[ref] = true
	m.acquired++
	return ref
}

func (m *mockEngine) counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}

func (m *mockEngine) liveNodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

func (m *mockEngine) liveFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func (m *mockEngine) CloneNode(ref NodeRef) NodeRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nodes[ref] {
		panic("mock: clone of dead node")
	}
	return m.allocNodeLocked()
}

func (m *mockEngine) FreeNode(ref NodeRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freedRefs[ref]++
	if !m.nodes[ref] {
		panic("mock: double release")
	}
	delete(m.nodes, ref)
	m.released++
}

func (m *mockEngine) VideoInfo(ref NodeRef) VideoInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nodes[ref] {
		panic("mock: info of dead node")
	}
	return m.info
}

func (m *mockEngine) render(n int32) (FrameRef, string) {
	if msg := m.failFrame(n); msg != "" {
		return 0, msg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRef++
	ref := FrameRef(m.nextRef)
	m.frames[ref] = n
	m.frameAcquired++
	return ref, ""
}

func (m *mockEngine) GetFrame(n int32, ref NodeRef, errBuf []byte) FrameRef {
	m.mu.Lock()
	m.lastBufLen = len(errBuf)
	m.mu.Unlock()

	frame, msg := m.render(n)
	if frame == 0 {
		copy(errBuf, msg)
		errBuf[len(msg)] = 0
	}
	return frame
}

func (m *mockEngine) GetFrameAsync(n int32, ref NodeRef, callback FrameDoneCallback, userData uintptr) {
	req := mockRequest{n: n, ref: ref, callback: callback, userData: userData}
	m.mu.Lock()
	if m.deferAsync {
		m.pending = append(m.pending, req)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.deliver(req)
}

func (m *mockEngine) deliver(req mockRequest) {
	frame, msg := m.render(req.n)
	var errMsg []byte
	if frame == 0 {
		errMsg = []byte(msg)
	}
	req.callback(req.userData, frame, req.n, req.ref, errMsg)
	// The engine reuses its message memory once the callback returns.
	for i := range errMsg {
		errMsg[i] = 'X'
	}
}

// takePending returns queued async requests, oldest first.
func (m *mockEngine) takePending() []mockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pending
	m.pending = nil
	return p
}

func (m *mockEngine) CloneFrame(ref FrameRef) FrameRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.frames[ref]
	if !ok {
		panic("mock: clone of dead frame")
	}
	m.nextRef++
	clone := FrameRef(m.nextRef)
	m.frames[clone] = n
	m.frameAcquired++
	return clone
}

func (m *mockEngine) FreeFrame(ref FrameRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.frames[ref]; !ok {
		panic("mock: double frame release")
	}
	delete(m.frames, ref)
	m.frameReleased++
}

func (m *mockEngine) frameNumber(ref FrameRef) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames[ref]
}

func (m *mockEngine) FrameFormat(FrameRef) Format   { return testFormat }
func (m *mockEngine) FrameWidth(FrameRef, int) int  { return 4 }
func (m *mockEngine) FrameHeight(FrameRef, int) int { return 2 }
func (m *mockEngine) FrameStride(FrameRef, int) int { return 8 }
func (m *mockEngine) FrameData(ref FrameRef, _ int) []byte {
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(m.frameNumber(ref))
	}
	return data
}
