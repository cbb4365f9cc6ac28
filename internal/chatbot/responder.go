// Package chatbot implements the reply-generation function: plain text in,
// plain text out. Rules are keyword substring matches, first hit wins.
package chatbot

import "strings"

type rule struct {
	keywords []string
	reply    string
}

// Responder answers inbound messages from a fixed rule table with a
// configurable greeting fallback.
type Responder struct {
	rules    []rule
	fallback string
}

// NewResponder builds the default rule set. fallback is returned when no rule
// matches; an empty fallback means unmatched messages get no reply.
func NewResponder(fallback string) *Responder {
	return &Responder{
		fallback: fallback,
		rules: []rule{
			{
				keywords: []string{"preço", "preco", "valor"},
				reply:    "💰 Nossos planos começam em R$ 99,90/mês. Quer saber mais?",
			},
			{
				keywords: []string{"site", "criar"},
				reply:    "🦕 Temos sites institucionais, e-commerce, industriais e mais! Qual te interessa?",
			},
			{
				keywords: []string{"obrigado", "obrigada"},
				reply:    "🥰 Por nada! Estou aqui para ajudar.",
			},
		},
	}
}

// Reply returns the reply text for an inbound message, or "" for no reply.
func (r *Responder) Reply(text string) string {
	lower := strings.ToLower(text)
	for _, rl := range r.rules {
		for _, kw := range rl.keywords {
			if strings.Contains(lower, kw) {
				return rl.reply
			}
		}
	}
	return r.fallback
}
