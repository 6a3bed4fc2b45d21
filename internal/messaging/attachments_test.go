package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func validAttachment() models.Attachment {
	return models.Attachment{
		Type:     "image",
		URL:      "https://cdn.example.com/uploads/x.jpg",
		Filename: "x.jpg",
		Size:     2048,
		MimeType: "image/jpeg",
	}
}

func TestValidateAttachment(t *testing.T) {
	require.NoError(t, validateAttachment(validAttachment()))

	cases := []struct {
		name   string
		mutate func(*models.Attachment)
	}{
		{"missing url", func(a *models.Attachment) { a.URL = "" }},
		{"missing filename", func(a *models.Attachment) { a.Filename = "" }},
		{"zero size", func(a *models.Attachment) { a.Size = 0 }},
		{"negative size", func(a *models.Attachment) { a.Size = -1 }},
		{"over the limit", func(a *models.Attachment) { a.Size = MaxAttachmentSize + 1 }},
		{"disallowed mime", func(a *models.Attachment) { a.MimeType = "application/x-sh" }},
		{"empty mime", func(a *models.Attachment) { a.MimeType = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAttachment()
			tc.mutate(&a)
			assert.ErrorIs(t, validateAttachment(a), ErrValidation)
		})
	}
}

func TestValidateAttachmentAcceptsLimitBoundary(t *testing.T) {
	a := validAttachment()
	a.Size = MaxAttachmentSize
	assert.NoError(t, validateAttachment(a))
}
