package domain

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MediaKind is a coarse classification derived from the sniffed MIME type.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// MediaRef points at an attachment on disk. The engine never loads media
// content itself; it only carries references alongside messages.
type MediaRef struct {
	ID   uuid.UUID `json:"id"`
	Path string    `json:"path"`
	Mime string    `json:"mime"`
	Kind MediaKind `json:"kind"`
}

// NewMediaRef sniffs the file's MIME type and classifies it.
func NewMediaRef(path string) (MediaRef, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return MediaRef{}, err
	}
	return MediaRef{
		ID:   uuid.New(),
		Path: path,
		Mime: mime.String(),
		Kind: kindOf(mime.String()),
	}, nil
}

func kindOf(mime string) MediaKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaImage
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	default:
		return MediaFile
	}
}
