package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	google_translate_tts "github.com/GrailFinder/google-translate-tts"
	"github.com/GrailFinder/google-translate-tts/handlers"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
	"github.com/hammamikhairi/chatgod/internal/markup"
)

// Compile-time interface check.
var _ domain.Synthesizer = (*Google)(nil)

// speechGenerator is the subset of google_translate_tts.Speech used here.
type speechGenerator interface {
	GenerateSpeech(text string) (io.Reader, error)
}

// Google synthesizes speech through the Google Translate TTS endpoint. It
// has a single voice per language and does not understand markup, so
// documents are reduced to their literal text.
type Google struct {
	speech speechGenerator
	log    *logger.Logger
}

// NewGoogle creates a Google Translate synthesizer for language.
func NewGoogle(language string, log *logger.Logger) *Google {
	if language == "" {
		language = DefaultLanguage
	}
	return &Google{
		speech: &google_translate_tts.Speech{
			Folder:   filepath.Join(os.TempDir(), "chatgod-gtts"),
			Language: language,
			Speed:    1,
			Handler:  &handlers.Beep{},
		},
		log: log,
	}
}

// Synthesize renders text; voice is ignored.
func (g *Google) Synthesize(ctx context.Context, text, voice string, textType domain.TextType) ([]byte, error) {
	if textType == domain.TextSSML {
		text = markup.Strip(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyAudio
	}

	type result struct {
		audio []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		r, err := g.speech.GenerateSpeech(text)
		if err != nil {
			done <- result{err: err}
			return
		}
		audio, err := io.ReadAll(r)
		done <- result{audio: audio, err: err}
	}()

	g.log.Debug("google tts: synthesizing %d chars", len(text))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: google tts: %w", domain.ErrSynthesisFailed, res.err)
		}
		if len(res.audio) == 0 {
			return nil, domain.ErrEmptyAudio
		}
		return res.audio, nil
	}
}
