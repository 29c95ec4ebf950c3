package platform

import (
	"encoding/json"
	"strconv"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/claude-session-player/watcher/internal/events"
	"github.com/claude-session-player/watcher/internal/render"
)

const slackMaxBlocks = 50

// SLContent is the Block Kit payload internal/platform.Slack posts or
// updates a message with.
type SLContent struct {
	Blocks []goslack.Block
}

// CacheKey implements RenderedContent by marshalling the block document;
// Block Kit JSON is deterministic for a given slice so byte-equality here
// is equivalent to structural equality.
func (c SLContent) CacheKey() string {
	data, err := json.Marshal(c.Blocks)
	if err != nil {
		return ""
	}
	return string(data)
}

// FormatSlack renders doc into a Block Kit document, capping at
// slackMaxBlocks total blocks per spec.md §4.7 (replacing the tail with a
// truncation context block rather than silently dropping it).
func FormatSlack(doc *render.Document) SLContent {
	var blocks []goslack.Block

	for i, seg := range doc.Segments {
		switch {
		case seg.User != nil:
			blocks = append(blocks, mrkdwnSection("*User*\n"+mrkdwnEscape(seg.User.Text)))
		case seg.System != nil:
			blocks = append(blocks, mrkdwnSection("_"+mrkdwnEscape(seg.System.Text)+"_"))
		case seg.ContextCompacted != nil:
			blocks = append(blocks, mrkdwnSection("_— context compacted —_"))
		case seg.Question != nil:
			blocks = append(blocks, formatSlackQuestion(seg.Question, i == len(doc.Segments)-1)...)
		case seg.Turn != nil:
			var lines []string
			for _, l := range turnLines(seg.Turn) {
				lines = append(lines, mrkdwnEscape(l))
			}
			blocks = append(blocks, mrkdwnSection(strings.Join(lines, "\n")))
		}
	}

	if len(blocks) > slackMaxBlocks {
		dropped := len(blocks) - (slackMaxBlocks - 1)
		blocks = blocks[:slackMaxBlocks-1]
		blocks = append(blocks, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, mrkdwnEscape("… "+strconv.Itoa(dropped)+" more block(s) truncated"), false, false)))
	}
	return SLContent{Blocks: blocks}
}

func formatSlackQuestion(b *events.Block, isLast bool) []goslack.Block {
	text := "*?* " + mrkdwnEscape(b.Text)
	if b.Answered {
		text += "\n_answered: " + mrkdwnEscape(b.AnsweredVal) + "_"
		return []goslack.Block{mrkdwnSection(text)}
	}
	out := []goslack.Block{mrkdwnSection(text)}
	if !isLast {
		return out
	}
	shown, overflow := questionAffordances(b)
	if len(shown) == 0 {
		return out
	}
	var elements []goslack.BlockElement
	for _, a := range shown {
		elements = append(elements, goslack.NewButtonBlockElement(a.Callback, a.Callback,
			goslack.NewTextBlockObject(goslack.PlainTextType, truncateRunes(a.Label, telegramLabelMaxChars, "…"), false, false)))
	}
	out = append(out, goslack.NewActionBlock("", elements...))
	if overflow > 0 {
		out = append(out, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, "+"+strconv.Itoa(overflow)+" more option(s)", false, false)))
	}
	return out
}

func mrkdwnSection(text string) goslack.Block {
	return goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil)
}

func mrkdwnEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
