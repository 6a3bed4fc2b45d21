package messaging

import "messaging-service/internal/models"

// MaxAttachmentSize is the per-attachment ceiling in bytes.
const MaxAttachmentSize = 10 << 20

var allowedMimeTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"video/mp4":  true,
	"audio/mpeg": true,
}

// validateAttachment checks uploaded-file metadata before anything is
// persisted. The upload itself happened elsewhere; this guards what we are
// willing to reference and fan out.
func validateAttachment(a models.Attachment) error {
	if a.URL == "" {
		return validationf("attachment url is required")
	}
	if a.Filename == "" {
		return validationf("attachment filename is required")
	}
	if a.Size <= 0 {
		return validationf("attachment size must be positive")
	}
	if a.Size > MaxAttachmentSize {
		return validationf("attachment %q exceeds the 10MB limit", a.Filename)
	}
	if !allowedMimeTypes[a.MimeType] {
		return validationf("attachment mime type %q is not allowed", a.MimeType)
	}
	return nil
}
