// Package sanitize masks sensitive values in raw content before it reaches a
// decision callback, a cache key, or an audit entry. Rules are fixed
// pattern/replacement pairs; there is no ML detection here.
package sanitize

import (
	"regexp"
	"sync"
)

// Rule is a single pattern/replacement pair. Rules run in list order and all
// rules are applied, so multiple sensitive value types in one string are all
// masked.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Engine applies an ordered rule set to produce safe preview strings. It is
// safe for concurrent use; Reload swaps the rule set atomically.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// New builds an Engine from the given rules. With no rules it falls back to
// the default set.
func New(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

// Sanitize returns the masked preview of text. The input is never mutated.
func (e *Engine) Sanitize(text string) string {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	out := text
	for _, rule := range rules {
		out = rule.Pattern.ReplaceAllString(out, rule.Replacement)
	}
	return out
}

// Reload replaces the active rule set. In-flight Sanitize calls finish with
// the set they started with.
func (e *Engine) Reload(rules []Rule) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
}

// Rules returns a copy of the active rule set.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule{}, e.rules...)
}

// DefaultRules masks API-key-like tokens, password assignments, email local
// parts (first character kept), phone numbers (country code and trailing
// digits kept), and credit-card-like digit runs (first/last four kept).
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "api_key",
			Pattern:     regexp.MustCompile(`\b(sk|pk|rk)-[A-Za-z0-9-_]{6,}`),
			Replacement: `$1-***`,
		},
		{
			Name:        "secret_assignment",
			Pattern:     regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token|api[_-]?key)\s*[:=]\s*\S+`),
			Replacement: `$1=***`,
		},
		{
			Name:        "email",
			Pattern:     regexp.MustCompile(`\b([A-Za-z0-9])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`),
			Replacement: `$1***@$2`,
		},
		{
			Name:        "credit_card",
			Pattern:     regexp.MustCompile(`\b(\d{4})[ -]?\d{4}[ -]?\d{4}[ -]?(\d{4})\b`),
			Replacement: `$1********$2`,
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`(\+\d{1,3})[ .-]?\(?\d{1,4}\)?(?:[ .-]?\d{2,4}){1,3}[ .-]?(\d{2})\b`),
			Replacement: `$1*******$2`,
		},
	}
}
