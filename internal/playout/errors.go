package playout

import "errors"

var (
	// ErrEngineMissing is returned when the transcoding engine binary cannot
	// be found. Surfaced synchronously; no state change.
	ErrEngineMissing = errors.New("transcoding engine not found")

	// ErrWriterActive is returned when the output directory is locked by
	// another controller process.
	ErrWriterActive = errors.New("output directory owned by another writer")

	// ErrAlreadyLive is returned by GoLive while already in live mode.
	ErrAlreadyLive = errors.New("already live")

	// ErrNotLive is returned by EndLive when live mode is not active.
	ErrNotLive = errors.New("not live")

	// ErrUnsupportedMedia is returned for uploads with an extension outside
	// the allowed video formats.
	ErrUnsupportedMedia = errors.New("unsupported media format")

	// ErrMediaTooLarge is returned for uploads over the size ceiling.
	ErrMediaTooLarge = errors.New("media file too large")

	// ErrUnsupportedFormat is returned for overlay assets outside the
	// allowed image formats.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrAssetTooLarge is returned for overlay assets over their size ceiling.
	ErrAssetTooLarge = errors.New("overlay asset too large")
)
