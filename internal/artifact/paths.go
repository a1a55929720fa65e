// Package artifact mirrors generated media files into an object store.
//
// The inference script saves its output under a public directory and prints a
// browser path such as "/generated/cat.png". This package resolves that path,
// classifies the file and uploads it so other services can fetch it.
package artifact

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/book-expert/media-bridge/internal/core"
	"github.com/google/uuid"
)

// File extension constants.
const (
	extAAC  = ".aac"
	extFLAC = ".flac"
	extGIF  = ".gif"
	extJPEG = ".jpeg"
	extJPG  = ".jpg"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extPNG  = ".png"
	extWAV  = ".wav"
	extWEBP = ".webp"
)

const (
	dot                    = "."
	invalidCharReplacement = "_"
)

var (
	// ErrEscapesPublicDir indicates a returned path resolving outside the public directory.
	ErrEscapesPublicDir = errors.New("path escapes public directory")
	// ErrPathEmpty indicates an empty returned path.
	ErrPathEmpty = errors.New("path cannot be empty")
)

// ResolvePublicPath maps a browser path returned by the script onto the public
// directory it was written to. Absolute filesystem paths inside publicDir are
// accepted as they are.
func ResolvePublicPath(publicDir, returned string) (string, error) {
	if strings.TrimSpace(returned) == "" {
		return "", ErrPathEmpty
	}

	root, err := filepath.Abs(publicDir)
	if err != nil {
		return "", fmt.Errorf("could not resolve absolute path for %q: %w", publicDir, err)
	}

	candidate := filepath.Clean(returned)
	if !filepath.IsAbs(candidate) || !isWithin(root, candidate) {
		candidate = filepath.Join(root, strings.TrimPrefix(filepath.ToSlash(returned), "/"))
	}

	if !isWithin(root, candidate) {
		return "", fmt.Errorf("%w: %s", ErrEscapesPublicDir, returned)
	}

	return candidate, nil
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsAudioFile checks if a filename has a common audio file extension.
func IsAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extFLAC, extOGG, extM4A, extAAC:
		return true
	default:
		return false
	}
}

// IsImageFile checks if a filename has a common image file extension.
func IsImageFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extPNG, extJPG, extJPEG, extWEBP, extGIF:
		return true
	default:
		return false
	}
}

// MatchesSelector reports whether the file type fits the generation selector.
// Unknown selectors always match.
func MatchesSelector(selector, filename string) bool {
	switch selector {
	case core.SelectorImage:
		return IsImageFile(filename)
	case core.SelectorAudio:
		return IsAudioFile(filename)
	default:
		return true
	}
}

// GetFileExtension returns the file extension without the leading dot.
func GetFileExtension(filename string) string {
	return strings.TrimPrefix(filepath.Ext(filename), dot)
}

// SanitizeKeySegment replaces characters that are invalid in object keys and filenames.
func SanitizeKeySegment(segment string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
		" ", invalidCharReplacement,
	)

	return replacer.Replace(segment)
}

// ObjectKey builds a unique key of the form "<selector>/<uuid><ext>".
func ObjectKey(selector, filename string) string {
	return SanitizeKeySegment(selector) + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}
