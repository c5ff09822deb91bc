// Package prompt builds the analysis prompt for a run and fits it to a
// provider's input-token budget without splitting room blocks.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iyou00/chatui/internal/timewindow"
	"github.com/iyou00/chatui/internal/transcript"
)

// DefaultSafetyMargin is the number of tokens held back from a provider's
// input budget.
const DefaultSafetyMargin = 500

// minTruncatedMessages is the floor for a block truncated to fit.
const minTruncatedMessages = 10

const lineTimeLayout = "2006-01-02 15:04:05"

// RoomBlock is one room's messages, kept together in a prompt.
type RoomBlock struct {
	Room     string
	Messages []transcript.Message
}

// Bundle is an assembled prompt. Bundles are values; FitToBudget returns a
// new one rather than editing its input.
type Bundle struct {
	SystemPrompt string
	Blocks       []RoomBlock
	Window       timewindow.Window
	Tokens       int

	// Dropped lists rooms removed to fit the budget.
	Dropped []string
	// Truncated is set when a single block was cut to its most recent
	// messages.
	Truncated bool
}

// Build assembles a bundle from a system prompt and room blocks in the
// given order.
func Build(systemPrompt string, blocks []RoomBlock, w timewindow.Window) Bundle {
	b := Bundle{
		SystemPrompt: systemPrompt,
		Blocks:       append([]RoomBlock(nil), blocks...),
		Window:       w,
	}
	b.Tokens = EstimateTokens(b.SystemPrompt) + EstimateTokens(b.UserPrompt())
	return b
}

// MessageCount returns the number of messages across all blocks.
func (b Bundle) MessageCount() int {
	n := 0
	for _, blk := range b.Blocks {
		n += len(blk.Messages)
	}
	return n
}

// UserPrompt renders the instruction frame, the data summary line, and every
// room block.
func (b Bundle) UserPrompt() string {
	var sb strings.Builder
	sb.WriteString(frame(len(b.Blocks), b.MessageCount(), b.Window))
	loc := b.Window.Start.Location()
	for _, blk := range b.Blocks {
		sb.WriteString("\n")
		sb.WriteString(renderBlock(blk, loc))
	}
	return sb.String()
}

func frame(rooms, messages int, w timewindow.Window) string {
	return "请根据以下群聊记录完成分析，并按要求输出完整的 HTML 报告。\n" +
		fmt.Sprintf("数据概览：共 %d 个群聊，%d 条消息，时间范围 %s。\n", rooms, messages, w.Wire)
}

func renderBlock(blk RoomBlock, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("## 群聊: ")
	sb.WriteString(blk.Room)
	sb.WriteString("\n")
	for _, m := range blk.Messages {
		ts := time.UnixMilli(m.Timestamp)
		if loc != nil {
			ts = ts.In(loc)
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", ts.Format(lineTimeLayout), m.Sender, m.Content)
	}
	return sb.String()
}

// FitToBudget returns a bundle whose estimate fits maxInputTokens. A system
// prompt above 30% of the budget is simplified first. Whole room blocks are
// then accepted by descending density (messages per token) while they fit
// in maxInputTokens minus the system prompt, the frame, and safetyMargin.
// When no block fits on its own, the densest block is cut to its most
// recent max(10, n*available/blockTokens*0.8) messages, never below 10.
// Accepted blocks keep their original order. A non-positive budget returns
// b unchanged.
func FitToBudget(b Bundle, maxInputTokens, safetyMargin int) Bundle {
	if maxInputTokens <= 0 {
		return b
	}
	if safetyMargin < 0 {
		safetyMargin = 0
	}

	system := b.SystemPrompt
	if float64(EstimateTokens(system)) > 0.3*float64(maxInputTokens) {
		system = SimplifyPrompt(system)
	}
	loc := b.Window.Start.Location()
	avail := maxInputTokens - EstimateTokens(system) -
		EstimateTokens(frame(len(b.Blocks), b.MessageCount(), b.Window)) - safetyMargin

	type scored struct {
		idx     int
		tokens  int
		density float64
	}
	var cands []scored
	for i, blk := range b.Blocks {
		if len(blk.Messages) == 0 {
			continue
		}
		t := EstimateTokens(renderBlock(blk, loc))
		if t < 1 {
			t = 1
		}
		cands = append(cands, scored{idx: i, tokens: t, density: float64(len(blk.Messages)) / float64(t)})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].density > cands[j].density })

	accepted := make(map[int]bool)
	used := 0
	for _, c := range cands {
		if used+c.tokens <= avail {
			accepted[c.idx] = true
			used += c.tokens
		}
	}

	var (
		kept      []RoomBlock
		dropped   []string
		truncated bool
	)
	if len(accepted) == 0 && len(cands) > 0 {
		best := cands[0]
		blk := truncateBlock(b.Blocks[best.idx], best.tokens, avail, loc)
		kept = []RoomBlock{blk}
		truncated = true
		for i, orig := range b.Blocks {
			if i != best.idx {
				dropped = append(dropped, orig.Room)
			}
		}
	} else {
		for i, blk := range b.Blocks {
			if accepted[i] {
				kept = append(kept, blk)
			} else {
				dropped = append(dropped, blk.Room)
			}
		}
	}

	out := Build(system, kept, b.Window)
	out.Dropped = dropped
	out.Truncated = truncated
	return out
}

// truncateBlock keeps the most recent messages of blk so that it fits avail,
// never going below minTruncatedMessages.
func truncateBlock(blk RoomBlock, blockTokens, avail int, loc *time.Location) RoomBlock {
	n := len(blk.Messages)
	keep := int(float64(n) * float64(avail) / float64(blockTokens) * 0.8)
	if keep < minTruncatedMessages {
		keep = minTruncatedMessages
	}
	for {
		if keep > n {
			keep = n
		}
		out := RoomBlock{Room: blk.Room, Messages: blk.Messages[n-keep:]}
		t := EstimateTokens(renderBlock(out, loc))
		if t <= avail || keep <= minTruncatedMessages {
			return out
		}
		next := int(float64(keep) * float64(avail) / float64(t) * 0.9)
		if next >= keep {
			next = keep - 1
		}
		if next < minTruncatedMessages {
			next = minTruncatedMessages
		}
		keep = next
	}
}
