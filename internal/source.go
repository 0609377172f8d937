package internal

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Azunyan1111/go-vapoursynth/internal/mkvsource"
	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
	"github.com/Azunyan1111/go-vapoursynth/internal/vscore"
)

// SourceOptions は入力クリップの指定。Script, Blank, MKV のいずれか1つ
type SourceOptions struct {
	Script      string
	Blank       string
	MKV         string
	OutputIndex int
	Workers     int
}

// Source は開いた入力クリップ
type Source struct {
	Node   *vapoursynth.Node
	script *vapoursynth.Script
	core   *vscore.Core
}

// OpenSource は入力クリップを開く
func OpenSource(opts SourceOptions) (*Source, error) {
	count := 0
	for _, s := range []string{opts.Script, opts.Blank, opts.MKV} {
		if s != "" {
			count++
		}
	}
	if count != 1 {
		return nil, errors.New("exactly one of a script, --blank or --mkv is required")
	}

	if opts.Script != "" {
		return openScript(opts.Script, opts.OutputIndex)
	}

	core := vscore.New(vscore.Options{Workers: opts.Workers, Logger: Logger()})
	var (
		node *vapoursynth.Node
		err  error
	)
	if opts.Blank != "" {
		var bo vscore.BlankOptions
		if bo, err = vscore.ParseBlank(opts.Blank); err != nil {
			return nil, err
		}
		var blank *vscore.Blank
		if blank, err = vscore.NewBlank(bo); err != nil {
			return nil, err
		}
		node, err = core.NewNode(blank)
	} else {
		node, err = mkvsource.Open(core, opts.MKV)
	}
	if err != nil {
		return nil, err
	}
	return &Source{Node: node, core: core}, nil
}

func openScript(path string, index int) (*Source, error) {
	script, err := vapoursynth.OpenScriptFile(path)
	if err != nil {
		return nil, err
	}
	node, alpha, err := script.Output(index)
	if err != nil {
		script.Close()
		return nil, err
	}
	if alpha != nil {
		Logger().Info("ignoring alpha output", zap.Int("index", index))
		alpha.Close()
	}
	return &Source{Node: node, script: script}, nil
}

// Close はノードを解放し、非同期リクエストの完了を待つ
func (s *Source) Close() error {
	s.Node.Close()
	if s.core != nil {
		s.core.Wait()
		if st := s.core.Stats(); st.NodeRefs != 0 || st.FrameRefs != 0 {
			return fmt.Errorf("leaked references: %d nodes, %d frames", st.NodeRefs, st.FrameRefs)
		}
	}
	if s.script != nil {
		return s.script.Close()
	}
	return nil
}
