package categorize

import (
	"fmt"
	"strings"
)

// buildClassifyPrompt constructs the batch classification prompt. The model
// must answer with a strict JSON array of category names, one per numbered
// transaction, in order.
func buildClassifyPrompt(descriptions []string, allowed []string) string {
	var b strings.Builder

	b.WriteString("You are a financial transaction classifier.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Classify EVERY transaction below into exactly ONE category.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a JSON array of strings, one category per transaction, in order.\n\n")

	b.WriteString("Use ONLY the following categories (case-sensitive):\n")
	for _, cat := range allowed {
		b.WriteString("  - " + cat + "\n")
	}
	b.WriteString("\nTransactions:\n")
	for i, desc := range descriptions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, desc)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- \"Subscriptions\" = Netflix, Spotify, SaaS.\n")
	b.WriteString("- \"Dining\" = restaurants, cafes, food delivery.\n")
	b.WriteString("- \"Groceries\" = supermarkets, food for home.\n")
	b.WriteString("- \"Transport\" = rides, fuel, public transit.\n")
	b.WriteString("- If unsure, use \"Other\".\n")
	fmt.Fprintf(&b, "- The array MUST contain exactly %d entries.\n\n", len(descriptions))

	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")

	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the formatting instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// If there's still junk around the JSON array, keep only from the first
	// '[' to the last ']'.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
