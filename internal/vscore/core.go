// Package vscore is a small frame server written in Go. It implements the
// vapoursynth.Engine interface over pluggable sources, so clips can be
// served and tested without the native library.
package vscore

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

// Source produces the frames of a clip. Render is called concurrently.
type Source interface {
	Info() vapoursynth.VideoInfo
	Render(n int) (*Picture, error)
}

// Options configures a Core.
type Options struct {
	// Workers bounds concurrent renders. Zero means runtime.NumCPU().
	Workers int
	Logger  *zap.Logger
}

type nodeEntry struct {
	src  Source
	info vapoursynth.VideoInfo
	refs int
}

// Stats is a snapshot of live references.
type Stats struct {
	NodeRefs  int
	FrameRefs int
	Nodes     int
	Pending   int
}

// Core is a pure-Go engine. Every reference it hands out is a distinct
// handle; releasing an unknown handle panics.
type Core struct {
	logger *zap.Logger
	sem    *semaphore.Weighted

	mu      sync.Mutex
	next    uintptr
	nodes   map[vapoursynth.NodeRef]*nodeEntry
	frames  map[vapoursynth.FrameRef]*Picture
	pending int
	wg      sync.WaitGroup
}

// New creates a Core.
func New(opts Options) *Core {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{
		logger: logger.Named("vscore"),
		sem:    semaphore.NewWeighted(int64(workers)),
		next:   0x10,
		nodes:  make(map[vapoursynth.NodeRef]*nodeEntry),
		frames: make(map[vapoursynth.FrameRef]*Picture),
	}
}

// NewNode registers src and returns a node holding its only reference.
func (c *Core) NewNode(src Source) (*vapoursynth.Node, error) {
	info := src.Info()
	c.mu.Lock()
	ref := c.allocNodeLocked(&nodeEntry{src: src, info: info})
	c.mu.Unlock()
	c.logger.Debug("node created", zap.Uintptr("ref", uintptr(ref)), zap.Stringer("info", info))
	return vapoursynth.NewNode(c, ref)
}

func (c *Core) allocNodeLocked(e *nodeEntry) vapoursynth.NodeRef {
	c.next++
	ref := vapoursynth.NodeRef(c.next)
	e.refs++
	c.nodes[ref] = e
	return ref
}

func (c *Core) entry(ref vapoursynth.NodeRef) *nodeEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.nodes[ref]
	if !ok {
		panic(fmt.Sprintf("vscore: unknown node reference %#x", uintptr(ref)))
	}
	return e
}

// CloneNode implements vapoursynth.Engine.
func (c *Core) CloneNode(ref vapoursynth.NodeRef) vapoursynth.NodeRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.nodes[ref]
	if !ok {
		panic(fmt.Sprintf("vscore: clone of unknown node reference %#x", uintptr(ref)))
	}
	return c.allocNodeLocked(e)
}

// FreeNode implements vapoursynth.Engine.
func (c *Core) FreeNode(ref vapoursynth.NodeRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.nodes[ref]
	if !ok {
		panic(fmt.Sprintf("vscore: release of unknown node reference %#x", uintptr(ref)))
	}
	delete(c.nodes, ref)
	e.refs--
}

// VideoInfo implements vapoursynth.Engine.
func (c *Core) VideoInfo(ref vapoursynth.NodeRef) vapoursynth.VideoInfo {
	return c.entry(ref).info
}

func (c *Core) render(e *nodeEntry, n int32) (vapoursynth.FrameRef, string) {
	if int(n) >= e.info.NumFrames {
		return 0, fmt.Sprintf("Requested frame %d out of range", n)
	}
	pic, err := e.src.Render(int(n))
	if err != nil {
		return 0, err.Error()
	}
	if pic == nil {
		return 0, fmt.Sprintf("Source returned no picture for frame %d", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	ref := vapoursynth.FrameRef(c.next)
	c.frames[ref] = pic
	return ref, ""
}

// GetFrame implements vapoursynth.Engine.
func (c *Core) GetFrame(n int32, ref vapoursynth.NodeRef, errBuf []byte) vapoursynth.FrameRef {
	frame, msg := c.render(c.entry(ref), n)
	if frame == 0 && len(errBuf) > 0 {
		k := copy(errBuf[:len(errBuf)-1], msg)
		errBuf[k] = 0
	}
	return frame
}

// GetFrameAsync implements vapoursynth.Engine. The request renders on its
// own goroutine once a worker slot is free.
func (c *Core) GetFrameAsync(n int32, ref vapoursynth.NodeRef, callback vapoursynth.FrameDoneCallback, userData uintptr) {
	e := c.entry(ref)
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		_ = c.sem.Acquire(context.Background(), 1)
		frame, msg := c.render(e, n)
		c.sem.Release(1)

		c.mu.Lock()
		c.pending--
		c.mu.Unlock()

		var errMsg []byte
		if frame == 0 {
			c.logger.Debug("frame failed", zap.Int32("n", n), zap.String("error", msg))
			errMsg = []byte(msg)
		}
		callback(userData, frame, n, ref, errMsg)
	}()
}

func (c *Core) picture(ref vapoursynth.FrameRef) *Picture {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.frames[ref]
	if !ok {
		panic(fmt.Sprintf("vscore: unknown frame reference %#x", uintptr(ref)))
	}
	return p
}

// CloneFrame implements vapoursynth.Engine.
func (c *Core) CloneFrame(ref vapoursynth.FrameRef) vapoursynth.FrameRef {
	p := c.picture(ref)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	clone := vapoursynth.FrameRef(c.next)
	c.frames[clone] = p
	return clone
}

// FreeFrame implements vapoursynth.Engine.
func (c *Core) FreeFrame(ref vapoursynth.FrameRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.frames[ref]; !ok {
		panic(fmt.Sprintf("vscore: release of unknown frame reference %#x", uintptr(ref)))
	}
	delete(c.frames, ref)
}

func (c *Core) FrameFormat(ref vapoursynth.FrameRef) vapoursynth.Format {
	return c.picture(ref).Format
}

func (c *Core) FrameWidth(ref vapoursynth.FrameRef, plane int) int {
	return c.picture(ref).PlaneWidth(plane)
}

func (c *Core) FrameHeight(ref vapoursynth.FrameRef, plane int) int {
	return c.picture(ref).PlaneHeight(plane)
}

func (c *Core) FrameStride(ref vapoursynth.FrameRef, plane int) int {
	return c.picture(ref).Strides[plane]
}

func (c *Core) FrameData(ref vapoursynth.FrameRef, plane int) []byte {
	return c.picture(ref).Planes[plane]
}

// Wait blocks until every async request has been delivered.
func (c *Core) Wait() {
	c.wg.Wait()
}

// Stats returns the current reference counts.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{NodeRefs: len(c.nodes), FrameRefs: len(c.frames), Pending: c.pending}
	seen := make(map[*nodeEntry]bool)
	for _, e := range c.nodes {
		seen[e] = true
	}
	s.Nodes = len(seen)
	return s
}
