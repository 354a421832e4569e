// Package chat реализует простой ассистент поддержки на ключевых словах.
package chat

import (
	"regexp"
	"strings"
)

var orderIDPattern = regexp.MustCompile(`\d+`)

const fallback = "I'm here to help you track your orders. Please provide your order ID."

// Respond подбирает ответ ассистента по ключевым словам сообщения.
// Порядок правил фиксирован: первое совпавшее правило выигрывает.
func Respond(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "order") && strings.Contains(lower, "track"):
		return "To track your order, please provide your order ID. You can find this in your order confirmation email or in your order history."
	case strings.Contains(lower, "delivery"):
		return "Delivery times vary depending on the product and location. Most orders are delivered within 3-5 business days. You can track your specific order by providing your order ID."
	case strings.Contains(lower, "return"), strings.Contains(lower, "refund"):
		return "For returns and refunds, please contact our customer service team. You can also check our return policy on our website."
	case strings.Contains(lower, "help"):
		return "I can help you with: \n- Order tracking\n- Delivery information\n- Returns and refunds\n- General inquiries\n\nWhat would you like to know?"
	case orderIDPattern.MatchString(message):
		return "Thank you for providing order ID " + message + ". I'm checking the status of your order...\n\nOrder Status: In Transit\nEstimated Delivery: 2-3 business days\nCurrent Location: Distribution Center\n\nIs there anything else you'd like to know about your order?"
	default:
		return fallback
	}
}
