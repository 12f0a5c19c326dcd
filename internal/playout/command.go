package playout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	manifestName   = "stream.m3u8"
	segmentPattern = "segment%05d.ts"

	logoPadding   = 10
	bannerPadding = 10

	defaultPattern = "smptebars=size=1280x720:rate=30"
	defaultTone    = "sine=frequency=440"
)

// ManifestPath returns the manifest file path inside the output directory.
func ManifestPath(dir string) string {
	return filepath.Join(dir, manifestName)
}

// BuildEngineArgs maps a source descriptor, an overlay snapshot, and the
// output parameters to the transcoding engine's argument list. It is a pure
// function with no side effects, so it is testable without spawning anything.
func BuildEngineArgs(src SourceDescriptor, overlay OverlayConfig, out OutputConfig) []string {
	args := []string{"-y"}

	baseInputs := 1
	audioMap := "0:a"

	switch src.Kind {
	case SourceCapture:
		args = append(args, "-f", src.Format, "-i", src.Device)
	case SourcePattern:
		baseInputs = 2
		audioMap = "1:a"
		pattern := src.Pattern
		if pattern == "" {
			pattern = defaultPattern
		}
		tone := src.Tone
		if tone == "" {
			tone = defaultTone
		}
		args = append(args, "-f", "lavfi", "-i", pattern, "-f", "lavfi", "-i", tone)
	default:
		if src.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", src.Path)
	}

	for _, layer := range overlay.Layers {
		args = append(args, "-i", layer.Path)
	}

	args = append(args,
		"-c:v", "libx264", "-preset", out.VideoPreset, "-tune", "zerolatency",
		"-b:v", out.VideoBitrate, "-maxrate", out.VideoMaxRate, "-bufsize", out.VideoBufSize,
		"-g", strconv.Itoa(out.GOPSize), "-keyint_min", strconv.Itoa(out.GOPSize), "-sc_threshold", "0",
		"-c:a", "aac", "-b:a", out.AudioBitrate,
		"-ar", strconv.Itoa(out.AudioSampleRate), "-ac", strconv.Itoa(out.AudioChannels),
	)

	if filter, label := buildFilterGraph(overlay, baseInputs); filter != "" {
		args = append(args, "-filter_complex", filter, "-map", label, "-map", audioMap)
	}

	flags := "append_list+program_date_time"
	if out.Discontinuity {
		flags += "+discont_start"
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(out.SegmentDuration),
		"-hls_list_size", strconv.Itoa(out.PlaylistWindow),
		"-hls_flags", flags,
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(out.Dir, segmentPattern),
		"-start_number", strconv.FormatInt(out.StartNumber, 10),
		out.ManifestPath,
	)

	return args
}

// buildFilterGraph assembles the overlay filter chain. Input [0:v] is the
// base video; overlay images follow after the base inputs in layer order.
// Logo is anchored top-left, banner bottom-center, each with fixed padding.
// The program-name text layer, when set, is drawn last (top-right).
func buildFilterGraph(overlay OverlayConfig, baseInputs int) (filter, label string) {
	var chains []string
	in := "[0:v]"

	for i, layer := range overlay.Layers {
		out := fmt.Sprintf("[ov%d]", i+1)
		var pos string
		switch layer.Kind {
		case AssetBanner:
			pos = fmt.Sprintf("(W-w)/2:H-h-%d", bannerPadding)
		default:
			pos = fmt.Sprintf("%d:%d", logoPadding, logoPadding)
		}
		chains = append(chains, fmt.Sprintf("%s[%d:v]overlay=%s%s", in, baseInputs+i, pos, out))
		in = out
	}

	if overlay.ProgramName != "" && overlay.FontPath != "" {
		out := "[named]"
		chains = append(chains, in+programNameFilter(overlay.ProgramName, overlay.FontPath)+out)
		in = out
	}

	if len(chains) == 0 {
		return "", ""
	}
	return strings.Join(chains, ";"), in
}

// programNameFilter renders the program name top-right over a translucent box.
func programNameFilter(name, fontPath string) string {
	safe := strings.NewReplacer(`\`, `\\`, ":", `\:`, "'", `\'`).Replace(name)
	return fmt.Sprintf(
		"drawtext=text='%s':fontfile=%s:fontsize=24:fontcolor=white:x=w-tw-10:y=10:box=1:boxcolor=black@0.4:boxborderw=5",
		safe, fontPath,
	)
}
