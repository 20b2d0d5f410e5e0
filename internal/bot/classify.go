// ABOUTME: Keyword classifier for inbound customer messages
// ABOUTME: Greedy containment matching with fixed precedence; greeting keywords always win

package bot

import "strings"

// Intent is the classified purpose of an inbound message.
type Intent int

const (
	// IntentGreeting shows the welcome text and the numbered menu.
	IntentGreeting Intent = iota
	// IntentCatalog links to the tenant's digital ordering page.
	IntentCatalog
	// IntentHandoff pauses the bot and calls a human operator.
	IntentHandoff
	// IntentHours replies with the operating-hours text.
	IntentHours
	// IntentFallback is the "didn't understand" reply.
	IntentFallback
)

// Keyword lists checked by containment on the normalized message.
// The precedence below is load-bearing: greeting keywords dominate even the
// numeric menu options, so a message like "menu 2" gets the welcome reply,
// not the handoff.
var (
	greetingKeywords = []string{"oi", "olá", "ola", "bot", "menu", "cardapio"}
	catalogKeywords  = []string{"cardapio", "pedido"}
	handoffKeywords  = []string{"atendente", "humano"}
	hoursKeywords    = []string{"horario", "horas"}
)

// Classify normalizes the message (lowercase, trim) and returns the first
// matching intent in precedence order: greeting > catalog > handoff > hours.
func Classify(body string) Intent {
	text := strings.ToLower(strings.TrimSpace(body))

	switch {
	case containsAny(text, greetingKeywords):
		return IntentGreeting
	case text == "1" || containsAny(text, catalogKeywords):
		return IntentCatalog
	case text == "2" || containsAny(text, handoffKeywords):
		return IntentHandoff
	case text == "3" || containsAny(text, hoursKeywords):
		return IntentHours
	default:
		return IntentFallback
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
