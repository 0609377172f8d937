//go:build vapoursynth

package vapoursynth

/*
#include <stdint.h>
#include <stdlib.h>
#include <VapourSynth.h>
#include <VSScript.h>

// Forward declaration for the Go callback
void goFrameDone(uintptr_t userData, VSFrameRef *f, int n, VSNodeRef *node, char *errorMsg);

static void VS_CC vs_frame_done(void *userData, const VSFrameRef *f, int n, VSNodeRef *node, const char *errorMsg) {
	goFrameDone((uintptr_t)userData, (VSFrameRef *)f, n, node, (char *)errorMsg);
}

static int vs_api_version(void) { return VAPOURSYNTH_API_VERSION; }

static VSNodeRef *vs_clone_node(const VSAPI *api, VSNodeRef *node) { return api->cloneNodeRef(node); }
static void vs_free_node(const VSAPI *api, VSNodeRef *node) { api->freeNode(node); }
static const VSVideoInfo *vs_get_video_info(const VSAPI *api, VSNodeRef *node) { return api->getVideoInfo(node); }

static const VSFrameRef *vs_get_frame(const VSAPI *api, int n, VSNodeRef *node, char *buf, int size) {
	return api->getFrame(n, node, buf, size);
}
static void vs_get_frame_async(const VSAPI *api, int n, VSNodeRef *node, uintptr_t token) {
	api->getFrameAsync(n, node, vs_frame_done, (void *)token);
}

static const VSFrameRef *vs_clone_frame(const VSAPI *api, const VSFrameRef *f) { return api->cloneFrameRef(f); }
static void vs_free_frame(const VSAPI *api, const VSFrameRef *f) { api->freeFrame(f); }
static const VSFormat *vs_get_frame_format(const VSAPI *api, const VSFrameRef *f) { return api->getFrameFormat(f); }
static int vs_get_frame_width(const VSAPI *api, const VSFrameRef *f, int plane) { return api->getFrameWidth(f, plane); }
static int vs_get_frame_height(const VSAPI *api, const VSFrameRef *f, int plane) { return api->getFrameHeight(f, plane); }
static int vs_get_stride(const VSAPI *api, const VSFrameRef *f, int plane) { return api->getStride(f, plane); }
static const uint8_t *vs_get_read_ptr(const VSAPI *api, const VSFrameRef *f, int plane) { return api->getReadPtr(f, plane); }
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// API is the process-wide VapourSynth API table. It implements Engine.
type API struct {
	vsapi *C.VSAPI
}

var (
	apiOnce   sync.Once
	cachedAPI *API
	apiErr    error
)

// GetAPI initializes VSScript and returns the cached API table.
func GetAPI() (*API, error) {
	apiOnce.Do(func() {
		if C.vsscript_init() == 0 {
			apiErr = errors.New("vapoursynth: failed to initialize VSScript")
			return
		}
		vsapi := C.vsscript_getVSApi2(C.vs_api_version())
		if vsapi == nil {
			apiErr = errors.New("vapoursynth: API version not supported by the installed library")
			return
		}
		cachedAPI = &API{vsapi: (*C.VSAPI)(unsafe.Pointer(vsapi))}
	})
	return cachedAPI, apiErr
}

func cNode(ref NodeRef) *C.VSNodeRef {
	return (*C.VSNodeRef)(unsafe.Pointer(uintptr(ref)))
}

func cFrame(ref FrameRef) *C.VSFrameRef {
	return (*C.VSFrameRef)(unsafe.Pointer(uintptr(ref)))
}

func (a *API) CloneNode(ref NodeRef) NodeRef {
	return NodeRef(uintptr(unsafe.Pointer(C.vs_clone_node(a.vsapi, cNode(ref)))))
}

func (a *API) FreeNode(ref NodeRef) {
	C.vs_free_node(a.vsapi, cNode(ref))
}

func (a *API) VideoInfo(ref NodeRef) VideoInfo {
	vi := C.vs_get_video_info(a.vsapi, cNode(ref))

	info := VideoInfo{
		NumFrames: int(vi.numFrames),
		Flags:     NodeFlags(vi.flags),
	}
	if vi.format == nil {
		info.Format = Variable[Format]()
	} else {
		info.Format = Constant(convertFormat(vi.format))
	}
	if vi.fpsNum == 0 || vi.fpsDen == 0 {
		info.Framerate = Variable[Framerate]()
	} else {
		info.Framerate = Constant(Framerate{Numerator: int64(vi.fpsNum), Denominator: int64(vi.fpsDen)})
	}
	if vi.width == 0 || vi.height == 0 {
		info.Resolution = Variable[Resolution]()
	} else {
		info.Resolution = Constant(Resolution{Width: int(vi.width), Height: int(vi.height)})
	}
	return info
}

func convertFormat(f *C.VSFormat) Format {
	return Format{
		Name:           C.GoString(&f.name[0]),
		ID:             int(f.id),
		ColorFamily:    ColorFamily(f.colorFamily),
		SampleType:     SampleType(f.sampleType),
		BitsPerSample:  int(f.bitsPerSample),
		BytesPerSample: int(f.bytesPerSample),
		SubSamplingW:   int(f.subSamplingW),
		SubSamplingH:   int(f.subSamplingH),
		NumPlanes:      int(f.numPlanes),
	}
}

func (a *API) GetFrame(n int32, ref NodeRef, errBuf []byte) FrameRef {
	f := C.vs_get_frame(a.vsapi, C.int(n), cNode(ref),
		(*C.char)(unsafe.Pointer(&errBuf[0])), C.int(len(errBuf)))
	return FrameRef(uintptr(unsafe.Pointer(f)))
}

// GetFrameAsync always completes through the package trampoline; the
// callback argument exists for engines implemented in Go.
func (a *API) GetFrameAsync(n int32, ref NodeRef, _ FrameDoneCallback, userData uintptr) {
	C.vs_get_frame_async(a.vsapi, C.int(n), cNode(ref), C.uintptr_t(userData))
}

func (a *API) CloneFrame(ref FrameRef) FrameRef {
	return FrameRef(uintptr(unsafe.Pointer(C.vs_clone_frame(a.vsapi, cFrame(ref)))))
}

func (a *API) FreeFrame(ref FrameRef) {
	C.vs_free_frame(a.vsapi, cFrame(ref))
}

func (a *API) FrameFormat(ref FrameRef) Format {
	return convertFormat(C.vs_get_frame_format(a.vsapi, cFrame(ref)))
}

func (a *API) FrameWidth(ref FrameRef, plane int) int {
	return int(C.vs_get_frame_width(a.vsapi, cFrame(ref), C.int(plane)))
}

func (a *API) FrameHeight(ref FrameRef, plane int) int {
	return int(C.vs_get_frame_height(a.vsapi, cFrame(ref), C.int(plane)))
}

func (a *API) FrameStride(ref FrameRef, plane int) int {
	return int(C.vs_get_stride(a.vsapi, cFrame(ref), C.int(plane)))
}

func (a *API) FrameData(ref FrameRef, plane int) []byte {
	ptr := C.vs_get_read_ptr(a.vsapi, cFrame(ref), C.int(plane))
	size := a.FrameStride(ref, plane) * a.FrameHeight(ref, plane)
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
}

// Script is an evaluated VapourSynth script.
type Script struct {
	api    *API
	mu     sync.Mutex
	handle *C.VSScript
}

// OpenScriptFile evaluates the script at path, with the working directory set
// to the script's directory.
func OpenScriptFile(path string) (*Script, error) {
	api, err := GetAPI()
	if err != nil {
		return nil, err
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var handle *C.VSScript
	if C.vsscript_evaluateFile(&handle, cPath, C.efSetWorkingDir) != 0 {
		return nil, scriptError(handle, path)
	}
	return &Script{api: api, handle: handle}, nil
}

// OpenScript evaluates source. name is used in error messages and for
// __file__.
func OpenScript(source, name string) (*Script, error) {
	api, err := GetAPI()
	if err != nil {
		return nil, err
	}

	cSource := C.CString(source)
	defer C.free(unsafe.Pointer(cSource))
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var handle *C.VSScript
	if C.vsscript_evaluateScript(&handle, cSource, cName, 0) != 0 {
		return nil, scriptError(handle, name)
	}
	return &Script{api: api, handle: handle}, nil
}

func scriptError(handle *C.VSScript, name string) error {
	msg := "unknown error"
	if handle != nil {
		if cErr := C.vsscript_getError(handle); cErr != nil {
			msg = C.GoString(cErr)
		}
		C.vsscript_freeScript(handle)
	}
	return fmt.Errorf("vapoursynth: failed to evaluate %s: %s", name, msg)
}

// Output returns the node set as output index, and its alpha node if the
// script provided one.
func (s *Script) Output(index int) (*Node, *Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil, nil, errors.New("vapoursynth: script closed")
	}

	var alphaRef *C.VSNodeRef
	mainRef := C.vsscript_getOutput2(s.handle, C.int(index), &alphaRef)
	if mainRef == nil {
		if alphaRef != nil {
			C.vs_free_node(s.api.vsapi, alphaRef)
		}
		return nil, nil, fmt.Errorf("vapoursynth: no output at index %d", index)
	}

	var alphaNode *Node
	if alphaRef != nil {
		n, err := NewNode(s.api, NodeRef(uintptr(unsafe.Pointer(alphaRef))))
		if err != nil {
			C.vs_free_node(s.api.vsapi, mainRef)
			return nil, nil, fmt.Errorf("alpha output %d: %w", index, err)
		}
		alphaNode = n
	}

	node, err := NewNode(s.api, NodeRef(uintptr(unsafe.Pointer(mainRef))))
	if err != nil {
		if alphaNode != nil {
			alphaNode.Close()
		}
		return nil, nil, fmt.Errorf("output %d: %w", index, err)
	}
	return node, alphaNode, nil
}

// Close frees the script. Nodes obtained from it stay valid.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		C.vsscript_freeScript(s.handle)
		s.handle = nil
	}
	return nil
}
