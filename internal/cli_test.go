package internal

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseWhipArgs(t *testing.T) {
	defer func() { DebugMode = false }()

	opts, _, err := ParseWhipArgs([]string{
		"clip.vpy", "-u", "http://localhost:8080/whip", "--token", "secret",
		"--drop-threshold", "50", "--rtcp-timeout", "0", "-e", "99", "--no-pacing",
	})
	if err != nil {
		t.Fatalf("ParseWhipArgs: %v", err)
	}
	want := WhipOptions{
		WhipURL:       "http://localhost:8080/whip",
		BearerToken:   "secret",
		Source:        SourceOptions{Script: "clip.vpy"},
		End:           99,
		Bitrate:       1000,
		KeyframeDist:  30,
		NoPacing:      true,
		DropThreshold: 50,
		ICEServers:    []string{DefaultSTUNServer},
		RTCPTimeout:   0,
		Log:           LogOptions{Format: "console"},
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Fatalf("options (-want +got):\n%s", diff)
	}

	opts, _, err = ParseWhipArgs([]string{"--blank", "64x64", "-u", "http://x/whip", "--ice-server", "stun:a:3478,stun:b:3478"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Source.Blank != "64x64" || opts.End != -1 || opts.RTCPTimeout != 5*time.Second {
		t.Fatalf("defaults not applied: %+v", opts)
	}
	if diff := cmp.Diff([]string{"stun:a:3478", "stun:b:3478"}, opts.ICEServers); diff != "" {
		t.Fatalf("ICE servers (-want +got):\n%s", diff)
	}
}

func TestParseWhipArgsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"clip.vpy"},
		{"a.vpy", "b.vpy", "-u", "http://x/whip"},
		{"-u", "http://x/whip", "--bitrate", "0"},
		{"-u", "http://x/whip", "--unknown-flag"},
	} {
		if _, _, err := ParseWhipArgs(args); err == nil {
			t.Errorf("ParseWhipArgs(%q) should fail", args)
		}
	}
}
