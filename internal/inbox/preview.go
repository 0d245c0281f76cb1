package inbox

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const previewMaxRunes = 100

// TextPreview truncates body to the preview length, marking the cut with an
// ellipsis. Media-only messages are summarized by photo count.
func TextPreview(body string, mediaCount int) string {
	body = strings.TrimSpace(body)
	if body == "" {
		switch {
		case mediaCount == 1:
			return "[1 photo]"
		case mediaCount > 1:
			return fmt.Sprintf("[%d photos]", mediaCount)
		default:
			return ""
		}
	}
	if utf8.RuneCountInString(body) <= previewMaxRunes {
		return body
	}
	r := []rune(body)
	return string(r[:previewMaxRunes]) + "…"
}

const (
	PreviewVoicemail  = "Left a voicemail"
	PreviewMissedCall = "Missed call"
)

// CallPreview summarizes a finished call. Unanswered inbound calls are
// missed calls; everything else shows the talk time as m:ss.
func CallPreview(direction Direction, answered bool, durationSeconds int) string {
	if direction == DirectionInbound && !answered {
		return PreviewMissedCall
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return fmt.Sprintf("Call (%d:%02d)", durationSeconds/60, durationSeconds%60)
}
