package playout

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus tracks a media item through its lifecycle.
type ItemStatus string

const (
	ItemQueued   ItemStatus = "queued"
	ItemActive   ItemStatus = "active"
	ItemConsumed ItemStatus = "consumed"
)

// MediaItem is one uploaded clip waiting in (or taken from) the queue.
// The file itself persists in the upload directory after the item is consumed.
type MediaItem struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Path       string     `json:"-"`
	UploadedAt time.Time  `json:"uploaded_at"`
	Status     ItemStatus `json:"status"`
}

// NewMediaItem returns a queued item for the given stored file.
func NewMediaItem(name, path string) MediaItem {
	return MediaItem{
		ID:         uuid.NewString(),
		Name:       name,
		Path:       path,
		UploadedAt: time.Now().UTC(),
		Status:     ItemQueued,
	}
}

// SourceKind discriminates the source descriptor variants.
type SourceKind string

const (
	SourceFile    SourceKind = "file"
	SourcePattern SourceKind = "pattern"
	SourceCapture SourceKind = "capture"
)

// SourceDescriptor describes one input the transcoding engine should play.
// Exactly one variant is populated, selected by Kind.
type SourceDescriptor struct {
	Kind SourceKind `json:"kind"`

	// SourceFile
	Path string `json:"path,omitempty"`
	Loop bool   `json:"loop,omitempty"`

	// SourcePattern: lavfi specs for generated video and audio.
	Pattern string `json:"pattern,omitempty"`
	Tone    string `json:"tone,omitempty"`

	// SourceCapture: input format (e.g. "v4l2") and device name.
	Format string `json:"format,omitempty"`
	Device string `json:"device,omitempty"`

	// Label is the human-readable name shown in status reports.
	Label string `json:"label"`
}

// FileSource describes a clip played once from start to finish.
func FileSource(label, path string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceFile, Path: path, Label: label}
}

// LoopSource describes a file looped indefinitely (idle fallback).
func LoopSource(label, path string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceFile, Path: path, Loop: true, Label: label}
}

// PatternSource describes generated test content (idle fallback when no idle
// file is configured).
func PatternSource(pattern, tone string) SourceDescriptor {
	return SourceDescriptor{Kind: SourcePattern, Pattern: pattern, Tone: tone, Label: "pattern"}
}

// CaptureSource describes a live capture device.
func CaptureSource(format, device string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceCapture, Format: format, Device: device, Label: device}
}

// State is the playout state machine state.
type State string

const (
	StateStopped      State = "STOPPED"
	StateQueuePlaying State = "QUEUE_PLAYING"
	StateIdle         State = "IDLE"
	StateLive         State = "LIVE"
)

// PlayoutSession is the currently active output run. At most one exists.
type PlayoutSession struct {
	Source    SourceDescriptor
	Overlay   OverlayConfig
	StartedAt time.Time

	handle *SessionHandle
}

// OverlayLayer is one image layer composited over the base video.
type OverlayLayer struct {
	Kind AssetKind
	Path string
}

// OverlayConfig is an immutable composition snapshot bound into a session at
// start time. Layers are ordered bottom to top above the base video.
type OverlayConfig struct {
	Layers      []OverlayLayer
	ProgramName string
	FontPath    string
}

// OutputConfig carries the HLS output parameters for one engine invocation.
type OutputConfig struct {
	Dir             string
	ManifestPath    string
	SegmentDuration int
	PlaylistWindow  int

	// StartNumber is the first segment sequence number for this session;
	// the continuity manager advances it across restarts within a run.
	StartNumber int64

	// Discontinuity marks the session boundary in the manifest. Set for
	// every session after the first in a broadcast run.
	Discontinuity bool

	VideoPreset     string
	VideoBitrate    string
	VideoMaxRate    string
	VideoBufSize    string
	GOPSize         int
	AudioBitrate    string
	AudioSampleRate int
	AudioChannels   int
}
