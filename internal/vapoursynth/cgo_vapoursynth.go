//go:build vapoursynth

package vapoursynth

/*
#cgo pkg-config: vapoursynth vapoursynth-script
#cgo linux LDFLAGS: -lpthread -ldl
*/
import "C"
