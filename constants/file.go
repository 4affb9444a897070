package constants

import "strings"

// MimeKind says whether a document is a single image or a paged container.
type MimeKind string

const (
	IMAGE MimeKind = "image"
	PAGED MimeKind = "paged"
)

// ImageConfidenceThreshold flags low-confidence image OCR for review.
const ImageConfidenceThreshold = 0.6

// MaxAttachmentMBDefault bounds the size of a fetched attachment.
const MaxAttachmentMBDefault = 25

var contentTypes = map[string]MimeKind{
	"application/pdf": PAGED,
	"image/tiff":      PAGED,
	"image/jpeg":      IMAGE,
	"image/jpg":       IMAGE,
	"image/png":       IMAGE,
	"image/webp":      IMAGE,
	"image/gif":       IMAGE,
	"image/heic":      IMAGE,
}

var extensions = map[string]MimeKind{
	"pdf":  PAGED,
	"tif":  PAGED,
	"tiff": PAGED,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"png":  IMAGE,
	"webp": IMAGE,
	"heic": IMAGE,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapContentType resolves a MIME kind from a content type, falling back to the
// file name's extension. Returns "" when neither is recognized.
func MapContentType(contentType, name string) MimeKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if k, ok := contentTypes[ct]; ok {
		return k
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		if k, ok := extensions[NormalizeExt(name[i:])]; ok {
			return k
		}
	}
	return ""
}
