package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// WhipOptions はwhip-goのコマンドライン設定
type WhipOptions struct {
	WhipURL       string
	BearerToken   string
	Source        SourceOptions
	Start         int
	End           int
	Bitrate       uint
	KeyframeDist  uint
	NoPacing      bool
	DropThreshold int
	ICEServers    []string
	RTCPTimeout   time.Duration
	Log           LogOptions
	CPUProfile    string
	MemProfile    string
}

// NewWhipFlagSet はwhip-go用のFlagSetを作成する
func NewWhipFlagSet(opts *WhipOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("whip-go", pflag.ContinueOnError)
	fs.StringVarP(&opts.WhipURL, "url", "u", "", "WHIP server URL")
	fs.StringVar(&opts.BearerToken, "token", "", "Bearer token for the WHIP endpoint")
	fs.StringVar(&opts.Source.Blank, "blank", "", "Publish a blank clip: WxH[@NUM/DEN][:LENGTH][,FORMAT[,COLOR...]]")
	fs.StringVar(&opts.Source.MKV, "mkv", "", "Publish a V_UNCOMPRESSED Matroska file")
	fs.IntVar(&opts.Source.OutputIndex, "output-index", 0, "Script output index")
	fs.IntVarP(&opts.Start, "start", "s", 0, "First frame to send")
	fs.IntVarP(&opts.End, "end", "e", -1, "Last frame to send (-1 = last frame of the clip)")
	fs.UintVar(&opts.Bitrate, "bitrate", 1000, "VP8 target bitrate in kbps")
	fs.UintVar(&opts.KeyframeDist, "keyframe-interval", 30, "Maximum distance between keyframes")
	fs.BoolVar(&opts.NoPacing, "no-pacing", false, "Send frames as fast as they are rendered")
	fs.IntVar(&opts.DropThreshold, "drop-threshold", 0, "Drop frames later than this many milliseconds (0 = never)")
	fs.StringSliceVar(&opts.ICEServers, "ice-server", []string{DefaultSTUNServer}, "ICE server URLs")
	fs.DurationVar(&opts.RTCPTimeout, "rtcp-timeout", 5*time.Second, "Stop when no RTCP arrives for this long (0 = never)")
	fs.BoolVarP(&DebugMode, "debug", "d", false, "Enable debug logging")
	fs.StringVar(&opts.Log.Format, "log-format", "console", "Log format (console, json)")
	fs.StringVar(&opts.Log.File, "log-file", "", "Write logs to this file with rotation")
	fs.StringVar(&opts.CPUProfile, "cpuprofile", "", "Write a CPU profile to this file")
	fs.StringVar(&opts.MemProfile, "memprofile", "", "Write a heap profile to this file on exit")
	return fs
}

// SetupWhipUsage はwhip-goのヘルプを設定する
func SetupWhipUsage(fs *pflag.FlagSet) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "WHIP VapourSynth Publisher - Encode a clip to VP8 and publish it via WHIP\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [script.vpy] -u URL [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s clip.vpy -u http://example.com/whip\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --blank 1280x720@30:900,YUV420P8 -u http://example.com/whip --token secret\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
}

// ParseWhipArgs はコマンドライン引数を解析し検証する
func ParseWhipArgs(args []string) (WhipOptions, *pflag.FlagSet, error) {
	var opts WhipOptions
	fs := NewWhipFlagSet(&opts)
	SetupWhipUsage(fs)
	if err := fs.Parse(args); err != nil {
		return opts, fs, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		opts.Source.Script = fs.Arg(0)
	default:
		return opts, fs, errors.New("only one script can be given")
	}
	if opts.WhipURL == "" {
		return opts, fs, errors.New("--url is required")
	}
	if opts.Bitrate == 0 {
		return opts, fs, errors.New("--bitrate must be positive")
	}
	return opts, fs, nil
}
