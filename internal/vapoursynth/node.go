package vapoursynth

import (
	"bytes"
	"fmt"
	"math"
	"sync/atomic"
)

// ErrorBufferSize is the size of the scratch buffer GetFrame hands to the
// engine for its error message. Same value as used in vsvfw.
var ErrorBufferSize = 32 * 1024

// Node is a reference to a node in the engine's filter graph. Each Node
// holds exactly one engine reference, acquired by NewNode or Clone and
// released by Close. A Node is safe for concurrent use.
type Node struct {
	api    Engine
	handle NodeRef
	freed  atomic.Bool
}

// NewNode wraps ref, a reference the caller already owns. Ownership passes to
// NewNode even when it fails: an invalid reference is released before the
// error is returned.
func NewNode(api Engine, ref NodeRef) (*Node, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrInvalidNode)
	}
	if ref == 0 {
		return nil, ErrInvalidNode
	}

	n := &Node{api: api, handle: ref}
	if err := validateInfo(api.VideoInfo(ref)); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// wrapNode takes over ref without validation. Used for references the
// engine hands back during a callback.
func wrapNode(api Engine, ref NodeRef) *Node {
	return &Node{api: api, handle: ref}
}

func validateInfo(vi VideoInfo) error {
	if vi.NumFrames < 0 {
		return fmt.Errorf("%w: negative frame count %d", ErrInvalidNode, vi.NumFrames)
	}
	if r, ok := vi.Resolution.Get(); ok && (r.Width <= 0 || r.Height <= 0) {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidNode, r.Width, r.Height)
	}
	if r, ok := vi.Framerate.Get(); ok && (r.Numerator <= 0 || r.Denominator <= 0) {
		return fmt.Errorf("%w: framerate %s", ErrInvalidNode, r)
	}
	return nil
}

func (n *Node) ref() NodeRef {
	if n.freed.Load() {
		panic("vapoursynth: use of closed node")
	}
	return n.handle
}

// Clone acquires a new reference to the same node. The returned Node is
// closed independently of n.
func (n *Node) Clone() *Node {
	return wrapNode(n.api, n.api.CloneNode(n.ref()))
}

// Close releases the reference. Calling Close more than once is a no-op.
func (n *Node) Close() {
	if n.freed.CompareAndSwap(false, true) {
		n.api.FreeNode(n.handle)
	}
}

// Info returns the video info associated with this node.
func (n *Node) Info() VideoInfo {
	return n.api.VideoInfo(n.ref())
}

func checkFrameNumber(n int) int32 {
	if n < 0 || n > math.MaxInt32 {
		panic(fmt.Sprintf("vapoursynth: frame number %d out of the engine's 32-bit range", n))
	}
	return int32(n)
}

// GetFrame generates frame n, blocking until the engine is done. It cannot be
// cancelled. On failure the error is a *GetFrameError.
//
// GetFrame panics if n is negative or greater than math.MaxInt32.
func (n *Node) GetFrame(frame int) (*Frame, error) {
	idx := checkFrameNumber(frame)

	errBuf := make([]byte, ErrorBufferSize)
	handle := n.api.GetFrame(idx, n.ref(), errBuf)
	if handle == 0 {
		msg := errBuf
		if i := bytes.IndexByte(msg, 0); i >= 0 {
			msg = msg[:i]
		}
		return nil, newOwnedError(msg)
	}
	return newFrame(n.api, handle), nil
}

// GetFrameAsync requests frame n and returns immediately. When the frame is
// ready, the engine calls callback exactly once, from an arbitrary goroutine.
// Multiple requests complete in any order.
//
// The callback receives the frame or a *GetFrameError, the frame number and
// the node that produced it. The callback owns the frame. The node is closed
// when the callback returns; Clone it to keep it. A borrowed error expires
// when the callback returns; call Owned to keep its text.
//
// Closing n right after GetFrameAsync does not affect the request. If the
// callback panics, the process is aborted.
//
// GetFrameAsync panics if n is negative or greater than math.MaxInt32.
func (n *Node) GetFrameAsync(frame int, callback FrameDoneFunc) {
	idx := checkFrameNumber(frame)
	if callback == nil {
		panic("vapoursynth: nil GetFrameAsync callback")
	}

	api := n.api
	ref := api.CloneNode(n.ref())
	id := registerRequest(&frameRequest{api: api, callback: callback})

	// The engine owns ref from here and hands it back to frameDone.
	api.GetFrameAsync(idx, ref, frameDone, id)
}
