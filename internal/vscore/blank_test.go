package vscore

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

func TestParseBlank(t *testing.T) {
	yuv, _ := vapoursynth.PresetFormat(vapoursynth.PresetYUV420P8)
	def := DefaultBlankOptions()

	tests := []struct {
		in   string
		want BlankOptions
	}{
		{"", def},
		{"320x240", BlankOptions{Width: 320, Height: 240, Format: def.Format, FPSNum: 24, FPSDen: 1, Length: 240}},
		{"640x480@30000/1001:100,YUV420P8", BlankOptions{Width: 640, Height: 480, Format: yuv, FPSNum: 30000, FPSDen: 1001, Length: 100}},
		{"@60:10", BlankOptions{Width: 640, Height: 480, Format: def.Format, FPSNum: 60, FPSDen: 1, Length: 10}},
		{"16x16,YUV420P8,235,128,128", BlankOptions{Width: 16, Height: 16, Format: yuv, FPSNum: 24, FPSDen: 1, Length: 240, Color: []uint32{235, 128, 128}}},
	}
	for _, tt := range tests {
		got, err := ParseBlank(tt.in)
		if err != nil {
			t.Fatalf("ParseBlank(%q): %v", tt.in, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("ParseBlank(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestParseBlankErrors(t *testing.T) {
	for _, in := range []string{"640", "axb", "640x480@x", "640x480:abc", "640x480,NOPE", "8x8,YUV420P8,1,2"} {
		if _, err := ParseBlank(in); err == nil {
			t.Fatalf("ParseBlank(%q) succeeded", in)
		}
	}
}

func TestBlankColor(t *testing.T) {
	opts, err := ParseBlank("6x4:3,YUV420P8")
	if err != nil {
		t.Fatal(err)
	}
	blank, err := NewBlank(opts)
	if err != nil {
		t.Fatal(err)
	}
	core := New(Options{Workers: 1})
	node, err := core.NewNode(blank)
	if err != nil {
		t.Fatal(err)
	}
	defer node.Close()

	frame, err := node.GetFrame(2)
	if err != nil {
		t.Fatal(err)
	}
	defer frame.Close()

	if diff := cmp.Diff([]byte{16, 16, 16, 16, 16, 16}, frame.Row(0, 3)); diff != "" {
		t.Fatalf("luma row (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{128, 128, 128}, frame.Row(2, 1)); diff != "" {
		t.Fatalf("chroma row (-want +got):\n%s", diff)
	}
	if _, err := node.GetFrame(3); err == nil {
		t.Fatal("frame past the end should fail")
	}
}

func TestNewBlankRejects(t *testing.T) {
	opts := DefaultBlankOptions()
	opts.FPSDen = 0
	if _, err := NewBlank(opts); err == nil {
		t.Fatal("expected error for zero denominator")
	}
	opts = DefaultBlankOptions()
	opts.Color = []uint32{1}
	if _, err := NewBlank(opts); err == nil {
		t.Fatal("expected error for short color")
	}
}
