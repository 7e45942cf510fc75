// Package media is the content-addressed media registry. Media files are
// identified by the sha256 of their bytes: the same payload forwarded in
// many messages is stored and uploaded once, and each message links to it.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidHash is returned for hashes that are not 64 lowercase hex chars.
var ErrInvalidHash = errors.New("invalid content hash")

// HashContent returns the lowercase hex sha256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether h looks like a HashContent result.
func ValidHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/wav":       ".wav",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// Extension maps a content type to a file extension, ".bin" when unknown.
// Content type parameters such as "; codecs=opus" are ignored.
func Extension(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(base))]; ok {
		return ext
	}
	return ".bin"
}

// StorageKey derives the blob key for content: media/<hash[0:2]>/<hash><ext>.
// The key depends only on the content, so repeated uploads overwrite the
// same object with the same bytes.
func StorageKey(hash, contentType string) string {
	return "media/" + hash[:2] + "/" + hash + Extension(contentType)
}

// ProviderMediaID extracts the provider's media id, the last path segment of
// its media URL.
func ProviderMediaID(mediaURL string) string {
	if u, err := url.Parse(mediaURL); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	if i := strings.LastIndex(mediaURL, "/"); i >= 0 {
		return mediaURL[i+1:]
	}
	return mediaURL
}
