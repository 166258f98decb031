// Package voice defines the speech capabilities the console depends on.
// Capture and playback devices live in the browser; the server only sees
// recognition results coming in and text to speak going out.
package voice

import (
	"context"
	"regexp"
	"strings"
)

// MaxSpeechChars bounds how much of an answer is spoken.
const MaxSpeechChars = 500

// Transcript is one speech recognition result. Interim results may be
// revised; final results are committed to the draft input.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// TranscriptionSource yields recognition results until it returns an error
// (io.EOF when the source is exhausted).
type TranscriptionSource interface {
	Next(ctx context.Context) (Transcript, error)
}

// SpeechSink speaks assistant answers for a session.
type SpeechSink interface {
	Speak(ctx context.Context, sessionID, text string) error
}

type NopSink struct{}

func (NopSink) Speak(context.Context, string, string) error { return nil }

var (
	fourDigits = regexp.MustCompile(`\b\d{4}\b`)
	unspoken   = regexp.MustCompile(`[^\w\s.,!?-]`)
)

// CleanForSpeech prepares text for a synthesizer: VINs are spelled out,
// years and other 4-digit numbers are read digit by digit, symbols become
// pauses, and the result is capped at MaxSpeechChars.
func CleanForSpeech(text string) string {
	out := strings.ReplaceAll(text, "VIN:", "V I N:")
	out = fourDigits.ReplaceAllStringFunc(out, func(m string) string {
		return strings.Join(strings.Split(m, ""), " ")
	})
	out = unspoken.ReplaceAllString(out, " ")

	runes := []rune(out)
	if len(runes) > MaxSpeechChars {
		runes = runes[:MaxSpeechChars]
	}
	return string(runes)
}

// MergeFinal appends a final transcript to the draft input, space separated.
func MergeFinal(draft, final string) string {
	if draft == "" {
		return final
	}
	return draft + " " + final
}
