// Package reply implements the deterministic rule-based responder. Replies
// are a pure function of the normalized input text: no state, no external
// calls, no randomness.
package reply

import "strings"

const (
	askRepeatReply = "I couldn't clearly understand the audio. " +
		"Could you please repeat your question about your bill or refund?"

	refundReply = "I understand you'd like a refund for your recent bill. " +
		"I've marked this as a refund request with high priority. " +
		"You'll receive an update on the refund status within 3-5 business days."

	billingReply = "I can help explain your bill. " +
		"Your latest invoice usually includes your base plan, taxes, " +
		"and any extra usage or late fees. " +
		"If you'd like, I can break down the charges for the last billing cycle."

	fallbackReply = "Thanks for your question. " +
		"I've logged your request and linked it to your account. " +
		"Someone from the billing team will review it and get back to you soon."
)

// ModelID is the audit identifier recorded for reply generation.
const ModelID = "rule-based-generate-reply-v1"

var refundKeywords = []string{"refund", "money back"}

var billingKeywords = []string{"bill", "charge", "charges", "amount", "invoice", "fees", "fee"}

// Generate maps input text to a reply. Rules are evaluated in order and the
// first match wins, so text mentioning both a refund and a bill gets the
// refund reply.
func Generate(text string) string {
	if strings.TrimSpace(text) == "" {
		return askRepeatReply
	}
	normalized := strings.ToLower(strings.TrimSpace(text))

	if containsAny(normalized, refundKeywords) {
		return refundReply
	}
	if containsAny(normalized, billingKeywords) {
		return billingReply
	}
	return fallbackReply
}

// Classify infers the CRM intent and priority for the text, following the
// same rule order as Generate.
func Classify(text string) (intent, priority string) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case normalized == "":
		return "general_query", "low"
	case containsAny(normalized, refundKeywords):
		return "request_refund", "high"
	case containsAny(normalized, billingKeywords):
		return "billing_explanation", "normal"
	default:
		return "general_query", "low"
	}
}

// RuleBased adapts the package functions to the pipeline's responder
// contract.
type RuleBased struct{}

func (RuleBased) Generate(text string) string { return Generate(text) }

func (RuleBased) Classify(text string) (intent, priority string) { return Classify(text) }

func (RuleBased) ModelID() string { return ModelID }

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
