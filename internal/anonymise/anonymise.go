// Package anonymise prepares text for the annotation service and masks
// the identifying spans it returns with placeholder tokens.
package anonymise

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kanishk-verma-dotcom/amica-processing/internal/gate"
)

// Delimiter joins the text of many rows into one service request, so a
// whole batch costs a single call against the service's daily quota.
const Delimiter = " <--> "

// escapedDelimiter is how the delimiter comes back: the service
// HTML-escapes angle brackets in the processed text.
const escapedDelimiter = "&lt;--&gt;"

// stripped is the punctuation removed during cleaning; sentence marks
// and the social-media characters the recognizer keys on stay.
const stripped = "$%&()*+-/:;<=>[\\]^_`{|}~"

// Clean normalizes one text cell: NFC form, social-media-irrelevant
// punctuation replaced by spaces, non-ASCII runes dropped, whitespace
// collapsed.
func Clean(text string) string {
	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r > 127:
			// The recognizer's models are ASCII-trained; drop the rune.
		case strings.ContainsRune(stripped, r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// JoinRows merges row texts into one request payload.
func JoinRows(rows []string) string {
	return strings.Join(rows, Delimiter)
}

// SplitResponse splits processed text back into per-row texts, undoing
// the service's HTML escaping of the delimiter first.
func SplitResponse(text string) []string {
	text = strings.ReplaceAll(text, escapedDelimiter, "<-->")
	parts := strings.Split(text, "<-->")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

// Placeholder returns the masking token for an entity given its raw
// text. ok is false for spans that must not be replaced: single-letter
// "user ids" like the i in i'm are tokenizer artefacts, not handles.
func Placeholder(entity gate.Entity, raw string) (string, bool) {
	switch entity.Kind {
	case gate.KindLocation:
		switch entity.Attr {
		case "", "na", "pre", "post", "unknown":
			return "<LOCATION_unknown>", true
		default:
			return "<LOCATION_" + entity.Attr + ">", true
		}
	case gate.KindPerson:
		switch entity.Attr {
		case "", "na", "None":
			return "<PERSON_gender_unknown>", true
		default:
			return "<PERSON_" + entity.Attr + ">", true
		}
	case gate.KindURL:
		return "<URL>", true
	case gate.KindUserID:
		if raw == "i" || raw == "t" {
			return "", false
		}
		return "<USER_ID>", true
	}
	return "", false
}

// Redact replaces every recognised span in text with its placeholder and
// returns the masked text plus the raw→placeholder map of substitutions
// applied. Spans with offsets outside the text are skipped.
func Redact(text string, entities []gate.Entity) (string, map[string]string) {
	replacements := make(map[string]string)

	masked := text
	for _, entity := range entities {
		if entity.Start < 0 || entity.End > len(text) || entity.Start >= entity.End {
			continue
		}
		raw := text[entity.Start:entity.End]
		placeholder, ok := Placeholder(entity, raw)
		if !ok {
			continue
		}
		replacements[raw] = placeholder
		masked = strings.ReplaceAll(masked, raw, placeholder)
	}

	return masked, replacements
}
