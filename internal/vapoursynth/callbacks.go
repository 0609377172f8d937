package vapoursynth

import (
	"fmt"
	"os"
	"sync"
)

// FrameDoneFunc receives the result of GetFrameAsync. err is nil or a
// *GetFrameError.
type FrameDoneFunc func(frame *Frame, err error, n int, node *Node)

type frameRequest struct {
	api      Engine
	callback FrameDoneFunc
}

// Pending requests, keyed by the token handed to the engine
var (
	requestsMu    sync.Mutex
	requestsMap           = make(map[uintptr]*frameRequest)
	nextRequestID uintptr = 1
)

func registerRequest(req *frameRequest) uintptr {
	requestsMu.Lock()
	defer requestsMu.Unlock()
	id := nextRequestID
	nextRequestID++
	if nextRequestID == 0 {
		nextRequestID = 1
	}
	requestsMap[id] = req
	return id
}

// takeRequest removes and returns the request for id, or nil if id was never
// registered or has already been delivered.
func takeRequest(id uintptr) *frameRequest {
	requestsMu.Lock()
	defer requestsMu.Unlock()
	req, ok := requestsMap[id]
	if !ok {
		return nil
	}
	delete(requestsMap, id)
	return req
}

func pendingRequests() int {
	requestsMu.Lock()
	defer requestsMu.Unlock()
	return len(requestsMap)
}

const abortExitCode = 134

// abort terminates the process. Replaced in tests.
var abort = func(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(abortExitCode)
}

// frameDone is the trampoline every engine calls to complete a GetFrameAsync
// request. A panic must not travel back into the engine, so anything that
// escapes the callback ends the process.
func frameDone(userData uintptr, frame FrameRef, n int32, node NodeRef, errMsg []byte) {
	defer func() {
		if r := recover(); r != nil {
			abort(fmt.Sprintf("panic in the GetFrameAsync() callback, aborting: %v", r))
		}
	}()

	req := takeRequest(userData)
	if req == nil {
		panic(fmt.Sprintf("vapoursynth: frame %d delivered for unknown or completed request %d", n, userData))
	}
	if n < 0 {
		panic(fmt.Sprintf("vapoursynth: engine delivered negative frame number %d", n))
	}

	var (
		result   *Frame
		err      error
		fetchErr *GetFrameError
	)
	if frame == 0 {
		fetchErr = newBorrowedError(errMsg)
		err = fetchErr
	} else {
		result = newFrame(req.api, frame)
	}

	owner := wrapNode(req.api, node)
	defer owner.Close()
	if fetchErr != nil {
		defer fetchErr.expire()
	}

	req.callback(result, err, int(n), owner)
}
