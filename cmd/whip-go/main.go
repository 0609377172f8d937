package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Azunyan1111/go-vapoursynth/internal"
	"github.com/Azunyan1111/go-vapoursynth/internal/vp8"
)

var errRTCPTimeout = errors.New("RTCP timeout")

func main() {
	opts, fs, err := internal.ParseWhipArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fs.Usage()
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts internal.WhipOptions) error {
	if opts.CPUProfile != "" {
		f, err := os.Create(opts.CPUProfile)
		if err != nil {
			return fmt.Errorf("failed to create cpu profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to start cpu profile: %w", err)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = f.Close()
			fmt.Fprintf(os.Stderr, "CPU profile written: %s\n", opts.CPUProfile)
		}()
	}
	if opts.MemProfile != "" {
		defer writeHeapProfile(opts.MemProfile)
	}

	logger, err := internal.SetupLogger(opts.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, err := internal.OpenSource(opts.Source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("source close", zap.Error(err))
		}
	}()
	info := src.Node.Info()
	fmt.Fprintf(os.Stderr, "Source: %s\n", info)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := internal.NewWHIPSession(opts.ICEServers)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Connecting to WHIP server: %s\n", opts.WhipURL)
	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	err = session.Connect(connectCtx, opts.WhipURL, opts.BearerToken)
	cancelConnect()
	if err != nil {
		session.PeerConnection.Close()
		return fmt.Errorf("failed to exchange SDP: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			logger.Warn("failed to close peer connection", zap.Error(err))
		}
	}()

	fmt.Fprintln(os.Stderr, "Connected to WHIP server, sending media...")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")
	go session.ReadRTCP()

	writer := vp8.NewWHIPWriter(session, opts.Bitrate, opts.KeyframeDist)
	defer writer.Close()

	pipe := &internal.Pipe{
		Node:   src.Node,
		Writer: writer,
		Start:  opts.Start,
		End:    opts.End,
		Logger: logger,
	}
	if !opts.NoPacing {
		pipe.Pacer = internal.NewPacer(time.Second)
		pipe.DropLate = time.Duration(opts.DropThreshold) * time.Millisecond
		fmt.Fprintln(os.Stderr, "PTS-based pacing enabled")
		if pipe.DropLate > 0 {
			fmt.Fprintf(os.Stderr, "Late frame dropping enabled (threshold: %v)\n", pipe.DropLate)
		}
	} else {
		fmt.Fprintln(os.Stderr, "PTS-based pacing disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	pipeDone := make(chan struct{})
	var stats internal.PipeStats
	g.Go(func() error {
		defer close(pipeDone)
		var err error
		stats, err = pipe.Run(gctx)
		return err
	})
	if opts.RTCPTimeout > 0 {
		// RTCPが一定時間届かなければ受信側がいなくなったとみなして終了
		g.Go(func() error {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-pipeDone:
					return nil
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if session.SinceLastRTCP() > opts.RTCPTimeout {
						return errRTCPTimeout
					}
				}
			}
		})
	}

	err = g.Wait()
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "End of clip")
	case errors.Is(err, errRTCPTimeout):
		fmt.Fprintf(os.Stderr, "RTCP timeout: no reports received for %v, stopping...\n", opts.RTCPTimeout)
	case ctx.Err() != nil:
		fmt.Fprintln(os.Stderr, "Stopping...")
	default:
		return err
	}
	fmt.Fprintf(os.Stderr, "Sent %d video frames (%d dropped, %d RTP packets) in %.1fs\n",
		stats.Written, stats.Dropped, writer.PacketsSent, stats.Elapsed.Seconds())
	return nil
}

func writeHeapProfile(path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create mem profile file: %v\n", err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write mem profile: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "Memory profile written: %s\n", path)
}
