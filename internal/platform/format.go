package platform

import (
	"strconv"
	"strings"

	"github.com/claude-session-player/watcher/internal/events"
	"github.com/claude-session-player/watcher/internal/render"
)

// affordance is one selectable option surfaced for an unanswered QUESTION
// segment, already bound to the callback-payload coordinates spec.md §4.7
// requires: "q:<tool_use_id>:<question_index>:<option_index>".
type affordance struct {
	Label    string
	Callback string
}

const maxAffordances = 5

// questionAffordances builds up to maxAffordances buttons for an unanswered
// QUESTION block, plus the count of options left over (for the overflow
// notice). Answered blocks return no affordances at all, per spec.md §4.4.
func questionAffordances(b *events.Block) (shown []affordance, overflow int) {
	if b.Answered {
		return nil, 0
	}
	total := 0
	for qi, q := range b.Questions {
		for oi, opt := range q.Options {
			total++
			if len(shown) < maxAffordances {
				shown = append(shown, affordance{
					Label:    opt.Label,
					Callback: questionCallback(b.ToolUseID, qi, oi),
				})
			}
		}
	}
	overflow = total - len(shown)
	if overflow < 0 {
		overflow = 0
	}
	return shown, overflow
}

func questionCallback(toolUseID string, questionIndex, optionIndex int) string {
	return "q:" + toolUseID + ":" + strconv.Itoa(questionIndex) + ":" + strconv.Itoa(optionIndex)
}

// turnLines collects an assistant turn's text, tool call summaries, and
// duration into the platform-agnostic lines a formatter then escapes and
// lays out per platform.
func turnLines(t *render.Turn) []string {
	var lines []string
	if t.AssistantText != "" {
		lines = append(lines, t.AssistantText)
	}
	for _, tc := range t.ToolCalls {
		label := tc.Label
		if label == "" {
			label = tc.Name
		}
		line := "→ " + nonEmpty(tc.Name, "tool") + ": " + label
		if tc.Result != "" {
			line += "\n  " + tc.Result
		}
		if tc.IsError {
			line += " (error)"
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	if t.HasDuration {
		lines = append(lines, durationLabel(t.DurationMS))
	}
	return lines
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func durationLabel(ms int64) string {
	seconds := float64(ms) / 1000
	if seconds < 1 {
		return "⏱ <1s"
	}
	return "⏱ " + trimTrailingZero(seconds) + "s"
}

func trimTrailingZero(f float64) string {
	s := strings.TrimRight(strings.TrimRight(strings.TrimRight(
		formatFloat(f), "0"), "."), "")
	if s == "" {
		return "0"
	}
	return s
}

func formatFloat(f float64) string {
	whole := int64(f)
	frac := int64((f - float64(whole)) * 100)
	if frac < 0 {
		frac = -frac
	}
	return strconv.FormatInt(whole, 10) + "." + pad2(int(frac))
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// truncateRunes truncates s to at most max runes, appending suffix when
// truncation occurs.
func truncateRunes(s string, max int, suffix string) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	budget := max - len([]rune(suffix))
	if budget < 0 {
		budget = 0
	}
	return string(r[:budget]) + suffix
}
