// Package vapoursynth provides safe Go handles over a VapourSynth-style
// reference-counted node graph.
//
// The engine that owns the graph is reached through the Engine interface.
// The native binding (build tag "vapoursynth") implements it via cgo; the
// vscore package implements it in pure Go.
package vapoursynth

// NodeRef is an opaque engine reference to a node. Zero is the null reference.
type NodeRef uintptr

// FrameRef is an opaque engine reference to a frame. Zero is the null reference.
type FrameRef uintptr

// FrameDoneCallback is the entry point an engine invokes exactly once per
// GetFrameAsync registration. errMsg is owned by the engine and only valid
// for the duration of the call.
type FrameDoneCallback func(userData uintptr, frame FrameRef, n int32, node NodeRef, errMsg []byte)

// Engine is the external engine: reference counting, metadata and frame
// computation. Implementations must be safe for concurrent use.
type Engine interface {
	// CloneNode acquires a new reference to the node behind ref.
	CloneNode(ref NodeRef) NodeRef
	// FreeNode releases one reference.
	FreeNode(ref NodeRef)
	// VideoInfo returns the node metadata. It never blocks on frame computation.
	VideoInfo(ref NodeRef) VideoInfo

	// GetFrame computes frame n, blocking until done. On failure it returns
	// zero and writes a NUL-terminated message into errBuf.
	GetFrame(n int32, ref NodeRef, errBuf []byte) FrameRef
	// GetFrameAsync registers a request and returns immediately. The engine
	// takes over ref and hands it back through callback.
	GetFrameAsync(n int32, ref NodeRef, callback FrameDoneCallback, userData uintptr)

	CloneFrame(ref FrameRef) FrameRef
	FreeFrame(ref FrameRef)
	FrameFormat(ref FrameRef) Format
	FrameWidth(ref FrameRef, plane int) int
	FrameHeight(ref FrameRef, plane int) int
	FrameStride(ref FrameRef, plane int) int
	// FrameData returns a read-only view of a plane, stride*height bytes.
	FrameData(ref FrameRef, plane int) []byte
}
