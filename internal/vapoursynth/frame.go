package vapoursynth

import "sync/atomic"

// Frame is a computed frame. It holds one engine reference until Close.
type Frame struct {
	api    Engine
	handle FrameRef
	freed  atomic.Bool
}

func newFrame(api Engine, handle FrameRef) *Frame {
	return &Frame{api: api, handle: handle}
}

func (f *Frame) ref() FrameRef {
	if f.freed.Load() {
		panic("vapoursynth: use of closed frame")
	}
	return f.handle
}

// Clone returns an independent reference to the same frame.
func (f *Frame) Clone() *Frame {
	return newFrame(f.api, f.api.CloneFrame(f.ref()))
}

// Close releases the frame. Calling Close more than once is a no-op.
func (f *Frame) Close() {
	if f.freed.CompareAndSwap(false, true) {
		f.api.FreeFrame(f.handle)
	}
}

// Format of the frame.
func (f *Frame) Format() Format {
	return f.api.FrameFormat(f.ref())
}

// Width of plane in pixels.
func (f *Frame) Width(plane int) int {
	return f.api.FrameWidth(f.ref(), plane)
}

// Height of plane in pixels.
func (f *Frame) Height(plane int) int {
	return f.api.FrameHeight(f.ref(), plane)
}

// Stride of plane in bytes.
func (f *Frame) Stride(plane int) int {
	return f.api.FrameStride(f.ref(), plane)
}

// Data returns a read-only view of plane, valid until Close.
func (f *Frame) Data(plane int) []byte {
	return f.api.FrameData(f.ref(), plane)
}

// Row returns the visible bytes of one row of plane, without stride padding.
func (f *Frame) Row(plane, row int) []byte {
	stride := f.Stride(plane)
	rowBytes := f.Width(plane) * f.Format().BytesPerSample
	data := f.Data(plane)
	start := row * stride
	return data[start : start+rowBytes]
}
