package playout

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"image/png"

	_ "image/jpeg" // decode support for jpeg uploads

	"golang.org/x/image/draw"
)

// AssetKind identifies an overlay asset slot.
type AssetKind string

const (
	AssetLogo   AssetKind = "logo"
	AssetBanner AssetKind = "banner"
)

const (
	maxLogoBytes   = 5 << 20
	maxBannerBytes = 10 << 20

	logoFraction = 10 // logo box is 1/10 of the frame in each dimension
)

var allowedAssetExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// AssetInfo describes a stored overlay asset for status reporting.
type AssetInfo struct {
	Exists  bool  `json:"exists"`
	Enabled bool  `json:"enabled"`
	Width   int   `json:"width,omitempty"`
	Height  int   `json:"height,omitempty"`
	Bytes   int64 `json:"bytes,omitempty"`
}

// OverlayStatus is the full overlay state returned by the status endpoint.
type OverlayStatus struct {
	Enabled     bool      `json:"enabled"`
	Logo        AssetInfo `json:"logo"`
	Banner      AssetInfo `json:"banner"`
	ProgramName string    `json:"program_name"`
}

// OverlayManager validates and stages overlay assets. Changes are staged
// state only: they are bound into a playout session at the next session
// start and never injected into a running process.
type OverlayManager struct {
	dir          string
	streamWidth  int
	streamHeight int
	bannerHeight int
	fontPath     string

	// One staging lock serializes uploads against composition snapshots so
	// a snapshot never reads a half-written asset.
	mu            sync.Mutex
	enabled       bool
	logoEnabled   bool
	bannerEnabled bool
	programName   string
}

// NewOverlayManager creates the overlay directory and returns a manager with
// all overlay kinds enabled.
func NewOverlayManager(settings Settings) (*OverlayManager, error) {
	if err := os.MkdirAll(settings.OverlayDir, 0o755); err != nil {
		return nil, fmt.Errorf("create overlay directory: %w", err)
	}
	return &OverlayManager{
		dir:           settings.OverlayDir,
		streamWidth:   settings.StreamWidth,
		streamHeight:  settings.StreamHeight,
		bannerHeight:  settings.BannerHeight,
		fontPath:      settings.FontPath,
		enabled:       true,
		logoEnabled:   true,
		bannerEnabled: true,
	}, nil
}

func (m *OverlayManager) assetPath(kind AssetKind) string {
	return filepath.Join(m.dir, string(kind)+".png")
}

func (m *OverlayManager) targetSize(kind AssetKind) (w, h int) {
	if kind == AssetBanner {
		return m.streamWidth, m.bannerHeight
	}
	return m.streamWidth / logoFraction, m.streamHeight / logoFraction
}

func sizeCeiling(kind AssetKind) int64 {
	if kind == AssetBanner {
		return maxBannerBytes
	}
	return maxLogoBytes
}

// Save validates and stages an uploaded overlay asset: extension and size
// are checked, the image is crop-to-fill resized to the slot's fixed target
// dimensions, normalized to PNG (transparency preserved), and written
// atomically into the overlay directory.
func (m *OverlayManager) Save(kind AssetKind, filename string, r io.Reader) (AssetInfo, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedAssetExts[ext]; !ok {
		return AssetInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	ceiling := sizeCeiling(kind)
	raw, err := io.ReadAll(io.LimitReader(r, ceiling+1))
	if err != nil {
		return AssetInfo{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > ceiling {
		return AssetInfo{}, fmt.Errorf("%w: %s limit is %dMB", ErrAssetTooLarge, kind, ceiling>>20)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return AssetInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	tw, th := m.targetSize(kind)
	fitted := cropToFill(src, tw, th)

	var buf bytes.Buffer
	if err := png.Encode(&buf, fitted); err != nil {
		return AssetInfo{}, fmt.Errorf("encode overlay: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dst := m.assetPath(kind)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return AssetInfo{}, fmt.Errorf("write overlay: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return AssetInfo{}, fmt.Errorf("stage overlay: %w", err)
	}

	return AssetInfo{
		Exists:  true,
		Enabled: m.kindEnabledLocked(kind),
		Width:   tw,
		Height:  th,
		Bytes:   int64(buf.Len()),
	}, nil
}

// Delete removes a staged asset. Deleting an absent asset is a no-op.
func (m *OverlayManager) Delete(kind AssetKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.assetPath(kind)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Toggle enables or disables one overlay kind, or "all" for the whole
// overlay system. Unknown kinds are rejected.
func (m *OverlayManager) Toggle(kind string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case string(AssetLogo):
		m.logoEnabled = enabled
	case string(AssetBanner):
		m.bannerEnabled = enabled
	case "all":
		m.enabled = enabled
	default:
		return fmt.Errorf("unknown overlay kind %q", kind)
	}
	return nil
}

// SetProgramName stages the program-name text layer; empty clears it.
func (m *OverlayManager) SetProgramName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programName = name
}

// ProgramName returns the staged program name.
func (m *OverlayManager) ProgramName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.programName
}

// Composition returns the immutable overlay snapshot to bind into the next
// session: existing, enabled assets layered bottom to top (logo below
// banner), plus the program-name text layer when a font is configured.
func (m *OverlayManager) Composition() OverlayConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg OverlayConfig
	if m.enabled {
		for _, kind := range []AssetKind{AssetLogo, AssetBanner} {
			if !m.kindEnabledLocked(kind) {
				continue
			}
			path := m.assetPath(kind)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			cfg.Layers = append(cfg.Layers, OverlayLayer{Kind: kind, Path: path})
		}
	}
	if m.programName != "" && m.fontPath != "" {
		cfg.ProgramName = m.programName
		cfg.FontPath = m.fontPath
	}
	return cfg
}

// Status reports the current overlay state.
func (m *OverlayManager) Status() OverlayStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return OverlayStatus{
		Enabled:     m.enabled,
		Logo:        m.assetInfoLocked(AssetLogo),
		Banner:      m.assetInfoLocked(AssetBanner),
		ProgramName: m.programName,
	}
}

func (m *OverlayManager) kindEnabledLocked(kind AssetKind) bool {
	if kind == AssetBanner {
		return m.bannerEnabled
	}
	return m.logoEnabled
}

func (m *OverlayManager) assetInfoLocked(kind AssetKind) AssetInfo {
	info := AssetInfo{Enabled: m.kindEnabledLocked(kind)}

	path := m.assetPath(kind)
	st, err := os.Stat(path)
	if err != nil {
		return info
	}
	info.Exists = true
	info.Bytes = st.Size()

	f, err := os.Open(path)
	if err != nil {
		return info
	}
	defer f.Close()
	if cfg, _, err := image.DecodeConfig(f); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return info
}

// cropToFill scales src to cover the target box and crops the overflow
// around the center, so the result is exactly tw x th with no letterboxing.
func cropToFill(src image.Image, tw, th int) *image.NRGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()

	// Largest centered source window with the target aspect ratio.
	srcW, srcH := sw, sh
	if sw*th > tw*sh {
		srcW = sh * tw / th
	} else {
		srcH = sw * th / tw
	}
	x0 := sb.Min.X + (sw-srcW)/2
	y0 := sb.Min.Y + (sh-srcH)/2

	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+srcW, y0+srcH), draw.Src, nil)
	return dst
}
