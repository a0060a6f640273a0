package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

// fakeTranscriber maps image URLs to canned text or errors.
type fakeTranscriber struct {
	texts map[string]string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, imageURL string) (string, error) {
	text, ok := f.texts[imageURL]
	if !ok {
		return "", errors.New("vision model unavailable")
	}
	return text, nil
}

func augmentService(tr *fakeTranscriber) *Service {
	return &Service{transcriber: tr, logger: zerolog.Nop()}
}

func TestAugmentAppendsTranscriptions(t *testing.T) {
	svc := augmentService(&fakeTranscriber{texts: map[string]string{
		"https://files.example/board.png": "Exit ticket: 3 + 4 = ?",
	}})

	msg := models.Message{
		Parts: []models.Part{{Type: models.PartText, Text: "what does the board say?"}},
		Attachments: []models.Attachment{
			{URL: "https://files.example/board.png", Name: "board.png", ContentType: "image/png"},
		},
	}
	svc.augment(context.Background(), &msg)

	require.Len(t, msg.Parts, 2)
	require.Contains(t, msg.Parts[1].Text, "board.png")
	require.Contains(t, msg.Parts[1].Text, "Exit ticket")
}

func TestAugmentPartialFailure(t *testing.T) {
	// One of two transcriptions fails; the turn keeps the successful one and
	// silently drops the other.
	svc := augmentService(&fakeTranscriber{texts: map[string]string{
		"https://files.example/ok.png": "readable text",
	}})

	msg := models.Message{
		Attachments: []models.Attachment{
			{URL: "https://files.example/ok.png", Name: "ok.png", ContentType: "image/png"},
			{URL: "https://files.example/broken.png", Name: "broken.png", ContentType: "image/png"},
		},
	}
	svc.augment(context.Background(), &msg)

	require.Len(t, msg.Parts, 1)
	require.Contains(t, msg.Parts[0].Text, "readable text")
	require.NotContains(t, msg.Parts[0].Text, "broken.png")
}

func TestAugmentSkipsNonImages(t *testing.T) {
	svc := augmentService(&fakeTranscriber{texts: map[string]string{
		"https://files.example/report.pdf": "should never be fetched",
	}})

	msg := models.Message{
		Attachments: []models.Attachment{
			{URL: "https://files.example/report.pdf", Name: "report.pdf", ContentType: "application/pdf"},
		},
	}
	svc.augment(context.Background(), &msg)
	require.Empty(t, msg.Parts)
}

func TestAugmentNoTranscriber(t *testing.T) {
	svc := &Service{logger: zerolog.Nop()}
	msg := models.Message{
		Attachments: []models.Attachment{
			{URL: "https://files.example/a.png", Name: "a.png", ContentType: "image/png"},
		},
	}
	svc.augment(context.Background(), &msg)
	require.Empty(t, msg.Parts)
}
