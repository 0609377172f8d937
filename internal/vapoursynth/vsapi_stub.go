//go:build !vapoursynth

package vapoursynth

// Script is an evaluated VapourSynth script. Without the native engine every
// constructor fails with ErrNotAvailable.
type Script struct{}

// OpenScriptFile returns ErrNotAvailable.
func OpenScriptFile(_ string) (*Script, error) {
	return nil, ErrNotAvailable
}

// OpenScript returns ErrNotAvailable.
func OpenScript(_, _ string) (*Script, error) {
	return nil, ErrNotAvailable
}

// Output returns ErrNotAvailable.
func (s *Script) Output(_ int) (*Node, *Node, error) {
	return nil, nil, ErrNotAvailable
}

// Close is a no-op for the stub.
func (s *Script) Close() error {
	return nil
}
