package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Azunyan1111/go-vapoursynth/internal"
	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
	"github.com/Azunyan1111/go-vapoursynth/internal/vp8"
)

var (
	cfgFile  string
	showInfo bool
	flagCfg  internal.Config
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	flagCfg = internal.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "vspipe-go [script.vpy]",
		Short: "Render a VapourSynth clip and write its frames to a file or stdout",
		Long: `vspipe-go evaluates a VapourSynth script (or a built-in blank or Matroska
source) and writes the frames of one output node as Y4M, raw planes,
V_UNCOMPRESSED Matroska or VP8 WebM.

Examples:
  vspipe-go clip.vpy -o - | ffmpeg -i - -c:v libx264 out.mp4
  vspipe-go --blank 1280x720@30000/1001:300,YUV420P8 -c webm -o blank.webm
  vspipe-go --mkv in.mkv -c raw -s 10 -e 19 -o frames.raw
  vspipe-go clip.vpy --info`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "YAML config file (flags override its values)")
	f.StringVar(&flagCfg.Blank, "blank", "", "Render a blank clip: WxH[@NUM[/DEN]][:LENGTH][,FORMAT[,COLOR...]]")
	f.StringVar(&flagCfg.MKV, "mkv", "", "Read a V_UNCOMPRESSED Matroska file")
	f.IntVar(&flagCfg.OutputIndex, "output-index", flagCfg.OutputIndex, "Script output index")
	f.StringVarP(&flagCfg.Output, "output", "o", flagCfg.Output, "Output file ('-' for stdout)")
	f.StringVarP(&flagCfg.Container, "container", "c", flagCfg.Container, "Output container (y4m, raw, mkv, webm)")
	f.IntVarP(&flagCfg.Start, "start", "s", flagCfg.Start, "First frame to output")
	f.IntVarP(&flagCfg.End, "end", "e", flagCfg.End, "Last frame to output (-1 = last frame of the clip)")
	f.IntVarP(&flagCfg.Requests, "requests", "r", flagCfg.Requests, "Concurrent frame requests (0 = number of CPUs)")
	f.BoolVar(&flagCfg.Sync, "sync", false, "Fetch frames one at a time with GetFrame")
	f.BoolVar(&flagCfg.Realtime, "realtime", false, "Pace output at the clip frame rate")
	f.BoolVarP(&showInfo, "info", "i", false, "Print clip information and exit")
	f.BoolVarP(&flagCfg.Progress, "progress", "p", false, "Print progress to stderr")
	f.IntVar(&flagCfg.Workers, "workers", flagCfg.Workers, "Render workers for built-in sources (0 = number of CPUs)")
	f.UintVar(&flagCfg.Bitrate, "bitrate", flagCfg.Bitrate, "VP8 target bitrate in kbps (webm)")
	f.BoolVarP(&internal.DebugMode, "debug", "d", false, "Enable debug logging")
	f.StringVar(&flagCfg.Log.Format, "log-format", flagCfg.Log.Format, "Log format (console, json)")
	f.StringVar(&flagCfg.Log.File, "log-file", "", "Write logs to this file with rotation")
	return cmd
}

func Execute() error {
	return rootCmd.Execute()
}

// resolveConfig merges the config file under the flags that were set
// explicitly on the command line.
func resolveConfig(fs *pflag.FlagSet, args []string) (internal.Config, error) {
	cfg := flagCfg
	if cfgFile != "" {
		fileCfg, err := internal.LoadConfig(cfgFile)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
		mergeFlags(fs, &cfg, flagCfg)
	}
	if len(args) > 0 {
		cfg.Script = args[0]
	}
	return cfg, nil
}

func mergeFlags(fs *pflag.FlagSet, dst *internal.Config, src internal.Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "blank":
			dst.Blank = src.Blank
		case "mkv":
			dst.MKV = src.MKV
		case "output-index":
			dst.OutputIndex = src.OutputIndex
		case "output":
			dst.Output = src.Output
		case "container":
			dst.Container = src.Container
		case "start":
			dst.Start = src.Start
		case "end":
			dst.End = src.End
		case "requests":
			dst.Requests = src.Requests
		case "sync":
			dst.Sync = src.Sync
		case "realtime":
			dst.Realtime = src.Realtime
		case "progress":
			dst.Progress = src.Progress
		case "workers":
			dst.Workers = src.Workers
		case "bitrate":
			dst.Bitrate = src.Bitrate
		case "log-format":
			dst.Log.Format = src.Log.Format
		case "log-file":
			dst.Log.File = src.Log.File
		}
	})
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd.Flags(), args)
	if err != nil {
		return err
	}

	logger, err := internal.SetupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, err := internal.OpenSource(internal.SourceOptions{
		Script:      cfg.Script,
		Blank:       cfg.Blank,
		MKV:         cfg.MKV,
		OutputIndex: cfg.OutputIndex,
		Workers:     cfg.Workers,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("source close", zap.Error(err))
		}
	}()

	if showInfo {
		return printInfo(cmd.OutOrStdout(), src.Node.Info())
	}

	out, closeOut, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}
	defer closeOut()

	writer, err := newWriter(cfg, out)
	if err != nil {
		return err
	}

	pipe := &internal.Pipe{
		Node:     src.Node,
		Writer:   writer,
		Start:    cfg.Start,
		End:      cfg.End,
		Requests: cfg.Requests,
		Sync:     cfg.Sync,
		Logger:   logger,
	}
	start, end, err := pipe.Range()
	if err != nil {
		writer.Close()
		return err
	}
	if cfg.Realtime {
		pipe.Pacer = internal.NewPacer(time.Second)
	}
	if cfg.Progress {
		pipe.Progress = internal.NewProgress(cmd.ErrOrStderr(), end-start+1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stats internal.PipeStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = pipe.Run(gctx)
		return err
	})
	runErr := g.Wait()
	closeErr := writer.Close()

	logger.Debug("pipe finished",
		zap.Int("written", stats.Written),
		zap.Int("dropped", stats.Dropped),
		zap.Duration("elapsed", stats.Elapsed))
	if runErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted after %d frames", stats.Written)
		}
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output: %w", closeErr)
	}
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func newWriter(cfg internal.Config, out io.Writer) (internal.FrameWriter, error) {
	switch strings.ToLower(cfg.Container) {
	case "", "y4m":
		return internal.NewY4MWriter(out), nil
	case "raw":
		return internal.NewRawStreamWriter(out), nil
	case "mkv":
		return internal.NewRawVideoMKVWriter(out), nil
	case "webm":
		return vp8.NewWebMWriter(out, cfg.Bitrate, 0), nil
	default:
		return nil, fmt.Errorf("unsupported container %q (supported: y4m, raw, mkv, webm)", cfg.Container)
	}
}

func printInfo(w io.Writer, info vapoursynth.VideoInfo) error {
	var b strings.Builder
	if res, ok := info.Resolution.Get(); ok {
		fmt.Fprintf(&b, "Width: %d\nHeight: %d\n", res.Width, res.Height)
	} else {
		b.WriteString("Width: Variable\nHeight: Variable\n")
	}
	fmt.Fprintf(&b, "Frames: %d\n", info.NumFrames)
	if fps, ok := info.Framerate.Get(); ok {
		fmt.Fprintf(&b, "FPS: %s (%.3f fps)\n", fps, float64(fps.Numerator)/float64(fps.Denominator))
	} else {
		b.WriteString("FPS: Variable\n")
	}
	if f, ok := info.Format.Get(); ok {
		sampleType := "Integer"
		if f.SampleType == vapoursynth.SampleTypeFloat {
			sampleType = "Float"
		}
		fmt.Fprintf(&b, "Format Name: %s\nColor Family: %s\nSample Type: %s\nBits: %d\nSubSampling W: %d\nSubSampling H: %d\n",
			f.Name, f.ColorFamily, sampleType, f.BitsPerSample, f.SubSamplingW, f.SubSamplingH)
	} else {
		b.WriteString("Format Name: Variable\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

