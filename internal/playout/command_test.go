package playout

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func testOutputConfig(start int64, discont bool) OutputConfig {
	return OutputConfig{
		Dir:             "/out",
		ManifestPath:    "/out/stream.m3u8",
		SegmentDuration: 2,
		PlaylistWindow:  10,
		StartNumber:     start,
		Discontinuity:   discont,
		VideoPreset:     "veryfast",
		VideoBitrate:    "2500k",
		VideoMaxRate:    "3000k",
		VideoBufSize:    "6000k",
		GOPSize:         60,
		AudioBitrate:    "128k",
		AudioSampleRate: 44100,
		AudioChannels:   2,
	}
}

// hasRun reports whether seq occurs as a consecutive run inside args.
func hasRun(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		if reflect.DeepEqual(args[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}

func argValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestBuildEngineArgs_FileSource(t *testing.T) {
	args := BuildEngineArgs(FileSource("a.mp4", "/videos/a.mp4"), OverlayConfig{}, testOutputConfig(0, false))

	if !hasRun(args, "-i", "/videos/a.mp4") {
		t.Errorf("missing file input: %v", args)
	}
	if hasRun(args, "-stream_loop", "-1") {
		t.Error("one-shot file must not loop")
	}
	if v, _ := argValue(args, "-start_number"); v != "0" {
		t.Errorf("start_number = %s, want 0", v)
	}
	if v, _ := argValue(args, "-hls_flags"); v != "append_list+program_date_time" {
		t.Errorf("hls_flags = %s", v)
	}
	if args[len(args)-1] != "/out/stream.m3u8" {
		t.Errorf("manifest must be the final argument: %v", args[len(args)-1])
	}
	if v, _ := argValue(args, "-hls_segment_filename"); v != filepath.Join("/out", "segment%05d.ts") {
		t.Errorf("segment filename = %s", v)
	}
}

func TestBuildEngineArgs_LoopSource(t *testing.T) {
	args := BuildEngineArgs(LoopSource("idle", "/idle.mp4"), OverlayConfig{}, testOutputConfig(7, true))

	if !hasRun(args, "-stream_loop", "-1", "-i", "/idle.mp4") {
		t.Errorf("missing looped input: %v", args)
	}
	if v, _ := argValue(args, "-start_number"); v != "7" {
		t.Errorf("start_number = %s, want 7", v)
	}
	if v, _ := argValue(args, "-hls_flags"); v != "append_list+program_date_time+discont_start" {
		t.Errorf("hls_flags = %s, want discontinuity marker", v)
	}
}

func TestBuildEngineArgs_PatternSource(t *testing.T) {
	src := PatternSource("smptebars=size=1280x720:rate=30", "sine=frequency=440")
	args := BuildEngineArgs(src, OverlayConfig{}, testOutputConfig(0, false))

	if !hasRun(args, "-f", "lavfi", "-i", "smptebars=size=1280x720:rate=30") {
		t.Errorf("missing pattern video input: %v", args)
	}
	if !hasRun(args, "-f", "lavfi", "-i", "sine=frequency=440") {
		t.Errorf("missing pattern audio input: %v", args)
	}
}

func TestBuildEngineArgs_CaptureSource(t *testing.T) {
	args := BuildEngineArgs(CaptureSource("v4l2", "/dev/video0"), OverlayConfig{}, testOutputConfig(0, false))

	if !hasRun(args, "-f", "v4l2", "-i", "/dev/video0") {
		t.Errorf("missing capture input: %v", args)
	}
}

func TestBuildEngineArgs_OverlayLayers(t *testing.T) {
	overlay := OverlayConfig{Layers: []OverlayLayer{
		{Kind: AssetLogo, Path: "/overlays/logo.png"},
		{Kind: AssetBanner, Path: "/overlays/banner.png"},
	}}

	t.Run("file_base", func(t *testing.T) {
		args := BuildEngineArgs(FileSource("a.mp4", "/videos/a.mp4"), overlay, testOutputConfig(0, false))

		filter, ok := argValue(args, "-filter_complex")
		if !ok {
			t.Fatalf("missing filter_complex: %v", args)
		}
		want := "[0:v][1:v]overlay=10:10[ov1];[ov1][2:v]overlay=(W-w)/2:H-h-10[ov2]"
		if filter != want {
			t.Errorf("filter = %s, want %s", filter, want)
		}
		if !hasRun(args, "-map", "[ov2]", "-map", "0:a") {
			t.Errorf("missing output maps: %v", args)
		}
		if !hasRun(args, "-i", "/overlays/logo.png") || !hasRun(args, "-i", "/overlays/banner.png") {
			t.Errorf("overlay images must be inputs: %v", args)
		}
	})

	t.Run("pattern_base_shifts_indices", func(t *testing.T) {
		args := BuildEngineArgs(PatternSource("", ""), overlay, testOutputConfig(0, false))

		filter, _ := argValue(args, "-filter_complex")
		if !strings.HasPrefix(filter, "[0:v][2:v]overlay=") {
			t.Errorf("overlay inputs must start after the two lavfi inputs: %s", filter)
		}
		if !hasRun(args, "-map", "1:a") {
			t.Errorf("pattern audio comes from input 1: %v", args)
		}
	})
}

func TestBuildEngineArgs_ProgramName(t *testing.T) {
	overlay := OverlayConfig{ProgramName: "News: Today's Show", FontPath: "/fonts/arial.ttf"}
	args := BuildEngineArgs(FileSource("a.mp4", "/videos/a.mp4"), overlay, testOutputConfig(0, false))

	filter, ok := argValue(args, "-filter_complex")
	if !ok {
		t.Fatalf("missing filter_complex: %v", args)
	}
	if !strings.Contains(filter, "drawtext=text='News\\: Today\\'s Show'") {
		t.Errorf("program name not escaped: %s", filter)
	}
	if !hasRun(args, "-map", "[named]") {
		t.Errorf("text layer must be the mapped output: %v", args)
	}
}

func TestBuildEngineArgs_NoOverlay(t *testing.T) {
	args := BuildEngineArgs(FileSource("a.mp4", "/videos/a.mp4"), OverlayConfig{}, testOutputConfig(0, false))

	if _, ok := argValue(args, "-filter_complex"); ok {
		t.Errorf("no filter graph expected without overlays: %v", args)
	}
}
