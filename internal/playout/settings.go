package playout

import (
	"path/filepath"
	"time"

	"tv-playout/internal/platform/config"
)

// Settings collects the playout tunables read from the environment.
type Settings struct {
	EnginePath string

	OutputDir  string
	UploadDir  string
	OverlayDir string

	// IdleSource is the file looped while the queue is empty. When unset or
	// missing on disk, a generated test pattern is used instead.
	IdleSource string

	CaptureFormat string
	CaptureDevice string

	SegmentDuration   int
	PlaylistWindow    int
	MaxActiveSegments int
	TrashRetention    time.Duration

	PollInterval time.Duration
	StopGrace    time.Duration

	VideoPreset  string
	VideoBitrate string
	VideoMaxRate string
	VideoBufSize string
	GOPSize      int

	AudioBitrate    string
	AudioSampleRate int
	AudioChannels   int

	StreamWidth  int
	StreamHeight int
	BannerHeight int
	FontPath     string

	MaxUploadBytes int64
}

// SettingsFromEnv reads settings from the environment with defaults.
func SettingsFromEnv() Settings {
	return Settings{
		EnginePath: config.GetEnv("ENGINE_PATH", "ffmpeg"),

		OutputDir:  config.GetEnv("OUTPUT_DIR", "data/hls"),
		UploadDir:  config.GetEnv("UPLOAD_DIR", "data/videos"),
		OverlayDir: config.GetEnv("OVERLAY_DIR", "data/overlays"),

		IdleSource: config.GetEnv("IDLE_SOURCE", ""),

		CaptureFormat: config.GetEnv("CAPTURE_FORMAT", "v4l2"),
		CaptureDevice: config.GetEnv("CAPTURE_DEVICE", "/dev/video0"),

		SegmentDuration:   config.GetEnvInt("SEGMENT_DURATION", 2),
		PlaylistWindow:    config.GetEnvInt("PLAYLIST_WINDOW", 10),
		MaxActiveSegments: config.GetEnvInt("MAX_ACTIVE_SEGMENTS", 50),
		TrashRetention:    config.GetEnvDuration("TRASH_RETENTION", time.Hour),

		PollInterval: config.GetEnvDuration("POLL_INTERVAL", time.Second),
		StopGrace:    config.GetEnvDuration("STOP_GRACE", 2*time.Second),

		VideoPreset:  config.GetEnv("VIDEO_PRESET", "veryfast"),
		VideoBitrate: config.GetEnv("VIDEO_BITRATE", "2500k"),
		VideoMaxRate: config.GetEnv("VIDEO_MAXRATE", "3000k"),
		VideoBufSize: config.GetEnv("VIDEO_BUFSIZE", "6000k"),
		GOPSize:      config.GetEnvInt("GOP_SIZE", 60),

		AudioBitrate:    config.GetEnv("AUDIO_BITRATE", "128k"),
		AudioSampleRate: config.GetEnvInt("AUDIO_SAMPLE_RATE", 44100),
		AudioChannels:   config.GetEnvInt("AUDIO_CHANNELS", 2),

		StreamWidth:  config.GetEnvInt("STREAM_WIDTH", 1280),
		StreamHeight: config.GetEnvInt("STREAM_HEIGHT", 720),
		BannerHeight: config.GetEnvInt("BANNER_HEIGHT", 150),
		FontPath:     config.GetEnv("FONT_PATH", ""),

		MaxUploadBytes: int64(config.GetEnvInt("MAX_UPLOAD_MB", 2048)) << 20,
	}
}

// TrashDir is where retired segments wait out their retention period.
func (s Settings) TrashDir() string {
	return filepath.Join(s.OutputDir, "trash")
}

// OutputConfig derives the engine output parameters for one session.
func (s Settings) OutputConfig(startNumber int64, discontinuity bool) OutputConfig {
	return OutputConfig{
		Dir:             s.OutputDir,
		ManifestPath:    ManifestPath(s.OutputDir),
		SegmentDuration: s.SegmentDuration,
		PlaylistWindow:  s.PlaylistWindow,
		StartNumber:     startNumber,
		Discontinuity:   discontinuity,
		VideoPreset:     s.VideoPreset,
		VideoBitrate:    s.VideoBitrate,
		VideoMaxRate:    s.VideoMaxRate,
		VideoBufSize:    s.VideoBufSize,
		GOPSize:         s.GOPSize,
		AudioBitrate:    s.AudioBitrate,
		AudioSampleRate: s.AudioSampleRate,
		AudioChannels:   s.AudioChannels,
	}
}
