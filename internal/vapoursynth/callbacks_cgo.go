//go:build vapoursynth

package vapoursynth

/*
#include <stdint.h>
#include <string.h>
#include <VapourSynth.h>
*/
import "C"
import "unsafe"

// This function is called from C code

//export goFrameDone
func goFrameDone(userData C.uintptr_t, f *C.VSFrameRef, n C.int, node *C.VSNodeRef, errorMsg *C.char) {
	var msg []byte
	if errorMsg != nil {
		// Borrowed: VapourSynth frees the message once we return.
		msg = unsafe.Slice((*byte)(unsafe.Pointer(errorMsg)), C.strlen(errorMsg))
	}
	frameDone(uintptr(userData),
		FrameRef(uintptr(unsafe.Pointer(f))),
		int32(n),
		NodeRef(uintptr(unsafe.Pointer(node))),
		msg)
}
