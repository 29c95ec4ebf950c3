package platform

import (
	"strconv"
	"strings"

	"github.com/claude-session-player/watcher/internal/events"
	"github.com/claude-session-player/watcher/internal/render"
)

const (
	telegramMaxChars       = 4096
	telegramTruncationTail = "\n[truncated]"
	telegramLabelMaxChars  = 30
	telegramCallbackBytes  = 64
)

// TGButton is one inline-keyboard button for an unanswered QUESTION block.
type TGButton struct {
	Label    string
	Callback string
}

// TGContent is the formatted payload internal/platform.Telegram sends or
// edits a message with.
type TGContent struct {
	Text    string
	Buttons []TGButton
}

// CacheKey implements RenderedContent; it folds the buttons in so a
// changed affordance set (e.g. a question becoming answered) is treated as
// a distinct render even if the visible text is unchanged.
func (c TGContent) CacheKey() string {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, btn := range c.Buttons {
		b.WriteString("\x00")
		b.WriteString(btn.Label)
		b.WriteString("\x00")
		b.WriteString(btn.Callback)
	}
	return b.String()
}

// FormatTelegram renders doc into HTML-parse-mode text plus, if the final
// segment is an unanswered QUESTION, an inline keyboard (spec.md §4.4,
// §4.7).
func FormatTelegram(doc *render.Document) TGContent {
	var blocks []string
	var buttons []TGButton

	for i, seg := range doc.Segments {
		switch {
		case seg.User != nil:
			blocks = append(blocks, "<b>User</b>\n"+escapeHTML(seg.User.Text))
		case seg.System != nil:
			blocks = append(blocks, "<i>"+escapeHTML(seg.System.Text)+"</i>")
		case seg.ContextCompacted != nil:
			blocks = append(blocks, "<i>— context compacted —</i>")
		case seg.Question != nil:
			blocks = append(blocks, formatTelegramQuestion(seg.Question))
			if i == len(doc.Segments)-1 {
				shown, overflow := questionAffordances(seg.Question)
				for _, a := range shown {
					buttons = append(buttons, TGButton{
						Label:    truncateRunes(a.Label, telegramLabelMaxChars, "…"),
						Callback: fitCallback(a.Callback),
					})
				}
				if overflow > 0 {
					blocks[len(blocks)-1] += "\n<i>+" + strconv.Itoa(overflow) + " more option(s)</i>"
				}
			}
		case seg.Turn != nil:
			var lines []string
			for _, l := range turnLines(seg.Turn) {
				lines = append(lines, escapeHTML(l))
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}

	full := strings.Join(blocks, "\n\n")
	text := full
	if len([]rune(full)) > telegramMaxChars {
		text = truncateRunes(full, telegramMaxChars-len([]rune(telegramTruncationTail)), "") + telegramTruncationTail
	}
	return TGContent{Text: text, Buttons: buttons}
}

func formatTelegramQuestion(b *events.Block) string {
	text := "<b>?</b> " + escapeHTML(b.Text)
	if b.Answered {
		text += "\n<i>answered: " + escapeHTML(b.AnsweredVal) + "</i>"
	}
	return text
}

// fitCallback truncates the tool_use_id component of a callback payload so
// the whole string fits Telegram's 64-byte callback_data limit, per
// spec.md §4.7.
func fitCallback(callback string) string {
	if len(callback) <= telegramCallbackBytes {
		return callback
	}
	parts := strings.Split(callback, ":")
	if len(parts) < 4 {
		return callback[:telegramCallbackBytes]
	}
	prefix := parts[0] + ":"
	suffix := ":" + parts[len(parts)-2] + ":" + parts[len(parts)-1]
	id := strings.Join(parts[1:len(parts)-2], ":")
	overflow := len(prefix) + len(id) + len(suffix) - telegramCallbackBytes
	if overflow >= len(id) {
		return prefix + suffix
	}
	return prefix + id[:len(id)-overflow] + suffix
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
