package filter

import (
	"strings"

	"talkback/pkg/models"
)

// emojiFilter removes emoji and pictographs. TTS engines either skip them
// or read out code point names; both interrupt the sentence.
type emojiFilter struct{}

func (emojiFilter) Name() string { return NameEmoji }

func (emojiFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	msg.Content = collapseSpaces(strings.Map(dropEmoji, msg.Content))
	return msg
}

func dropEmoji(r rune) rune {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		// Pictographs, emoticons, transport, flags, supplemental symbols
		return -1
	case r >= 0x2600 && r <= 0x27BF:
		// Miscellaneous symbols and dingbats (checkmarks, crosses)
		return -1
	case r >= 0x2B00 && r <= 0x2BFF:
		// Stars and heavy arrows
		return -1
	case r >= 0x25A0 && r <= 0x25FF:
		// Geometric shapes (play/stop glyphs)
		return -1
	case r == 0xFE0F, r == 0x200D, r == 0x20E3:
		// Variation selector, zero-width joiner, combining keycap
		return -1
	}
	return r
}
