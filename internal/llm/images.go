package llm

import (
	"github.com/joseph-ayodele/packet-underwriter/constants"
)

// MaxVisionMB bounds images sent inline to a vision model.
const MaxVisionMB = 8

var visionTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ShouldAttachImage reports whether a single-image document should be sent to the
// model alongside its OCR text: only when OCR confidence is low, the format is
// one vision models accept, and the image is small enough.
func ShouldAttachImage(kind constants.MimeKind, contentType string, content []byte, ocrConfidence float32) (Image, bool) {
	if kind != constants.IMAGE || ocrConfidence >= constants.ImageConfidenceThreshold {
		return Image{}, false
	}
	// HEIC is not accepted by vision endpoints
	if !visionTypes[contentType] {
		return Image{}, false
	}
	if len(content) == 0 || len(content) > MaxVisionMB*1024*1024 {
		return Image{}, false
	}
	return Image{MIMEType: contentType, Data: content}, true
}
