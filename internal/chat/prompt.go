package chat

import "strings"

const groundingRules = "Answer only from the store data below. " +
	"If the answer is not in that data or you are unsure, say so and suggest " +
	"the customer contact the store's support team."

// BuildSystemPrompt combines the persona with the rendered product and policy
// blocks into the system message for one chat turn.
func BuildSystemPrompt(persona, products, policies string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(persona))
	b.WriteString("\n")
	b.WriteString(groundingRules)
	b.WriteString("\n\nHere are some of the latest products:\n")
	b.WriteString(products)
	b.WriteString("\n\nStore policies:\n")
	b.WriteString(policies)
	return b.String()
}
