package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

// imageContentTypes is the attachment allow-list for transcription.
var imageContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// augment transcribes the message's image attachments and appends the
// combined text as an extra text part. Attachments fan out concurrently and
// fail independently: one failed transcription skips that attachment only and
// never fails the turn.
func (s *Service) augment(ctx context.Context, msg *models.Message) {
	if s.transcriber == nil || len(msg.Attachments) == 0 {
		return
	}

	results := make([]string, len(msg.Attachments))
	var wg sync.WaitGroup
	for i, att := range msg.Attachments {
		if !imageContentTypes[att.ContentType] {
			continue
		}
		wg.Add(1)
		go func(i int, url, name string) {
			defer wg.Done()
			text, err := s.transcriber.Transcribe(ctx, url)
			if err != nil {
				s.logger.Warn().Err(err).Str("attachment", name).Msg("attachment transcription failed")
				return
			}
			results[i] = text
		}(i, att.URL, att.Name)
	}
	wg.Wait()

	var transcribed []string
	for i, text := range results {
		if text == "" {
			continue
		}
		transcribed = append(transcribed, msg.Attachments[i].Name+":\n"+text)
	}
	if len(transcribed) == 0 {
		return
	}

	msg.Parts = append(msg.Parts, models.Part{
		Type: models.PartText,
		Text: "[Attached image transcriptions]\n" + strings.Join(transcribed, "\n\n"),
	})
}
