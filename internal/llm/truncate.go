package llm

import "fmt"

// PayloadBudget is the per-payload character budget for tool inputs and
// outputs embedded into extraction prompts.
const PayloadBudget = 4000

// TruncatePayload bounds a tool payload to the budget, replacing the excess
// with a marker. Payloads are truncated before being wrapped in their XML
// envelope, so the envelope's structural tags always survive.
func TruncatePayload(s string, budget int) string {
	if budget <= 0 {
		budget = PayloadBudget
	}
	if len(s) <= budget {
		return s
	}
	removed := len(s) - budget
	return s[:budget] + fmt.Sprintf("\n[TRUNCATED %d chars]", removed)
}

// EstimateTokens approximates the token count of a conversation as
// ceil(chars / 4).
func EstimateTokens(messages []Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
	}
	return (chars + 3) / 4
}

// TruncateHistory drops the oldest non-system messages until both the
// message-count and token bounds are satisfied. The system message at
// index 0 is always preserved: it is the policy carrier. Returns the
// bounded history and the number of messages dropped.
func TruncateHistory(messages []Message, maxMessages, maxTokens int) ([]Message, int) {
	if len(messages) == 0 {
		return messages, 0
	}

	hasSystem := messages[0].Role == RoleSystem
	dropped := 0

	exceeds := func(msgs []Message) bool {
		if maxMessages > 0 && len(msgs) > maxMessages {
			return true
		}
		if maxTokens > 0 && EstimateTokens(msgs) > maxTokens {
			return true
		}
		return false
	}

	out := append([]Message(nil), messages...)
	for exceeds(out) {
		dropIdx := 0
		if hasSystem {
			dropIdx = 1
		}
		if dropIdx >= len(out) {
			break
		}
		if hasSystem && len(out) == 1 {
			break
		}
		out = append(out[:dropIdx], out[dropIdx+1:]...)
		dropped++
	}
	return out, dropped
}
