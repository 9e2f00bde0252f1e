package vault

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Token kinds. The kind only labels the marker for the LLM's benefit;
// uniqueness comes from the per-kind counter.
const (
	KindAccount     = "ACCT"
	KindInstitution = "INST"
	KindBalance     = "BAL"
	KindMerchant    = "MERCH"
	KindAmount      = "AMT"
)

// markerPattern matches any well-formed token marker. The bracket
// delimiters never occur in account data or LLM prose, so a marker can
// never partially overlap another string.
var markerPattern = regexp.MustCompile(`⟦[A-Z]+_\d+⟧`)

// Vault holds the bijection between real sensitive values and opaque
// markers for one tokenization scope. Safe for concurrent use.
type Vault struct {
	mu       sync.RWMutex
	byValue  map[string]string
	byToken  map[string]string
	counters map[string]int
}

func New() *Vault {
	return &Vault{
		byValue:  make(map[string]string),
		byToken:  make(map[string]string),
		counters: make(map[string]int),
	}
}

// Token returns the marker for a real value, minting one on first use.
// The same value always maps to the same marker within this vault, and
// no two distinct values ever share a marker.
func (v *Vault) Token(kind, value string) string {
	if value == "" {
		return ""
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if tok, ok := v.byValue[value]; ok {
		return tok
	}
	v.counters[kind]++
	tok := fmt.Sprintf("⟦%s_%d⟧", kind, v.counters[kind])
	v.byValue[value] = tok
	v.byToken[tok] = value
	return tok
}

func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byToken)
}

// Contains reports whether the given real value has been tokenized.
func (v *Vault) Contains(value string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.byValue[value]
	return ok
}

// Retokenize replaces known sensitive values in free text with their
// existing markers. Conversation history is stored detokenized, so it
// must pass back through the vault before re-entering a prompt.
// Longest-value-first, mirroring Detokenize.
func (v *Vault) Retokenize(text string) string {
	if text == "" {
		return text
	}

	v.mu.RLock()
	values := make([]string, 0, len(v.byValue))
	for val := range v.byValue {
		values = append(values, val)
	}
	tokens := make(map[string]string, len(v.byValue))
	for val, tok := range v.byValue {
		tokens[val] = tok
	}
	v.mu.RUnlock()

	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})

	out := text
	for _, val := range values {
		out = strings.ReplaceAll(out, val, tokens[val])
	}
	return out
}

// Detokenize substitutes every known marker in text back to its real
// value. Substitution is longest-marker-first so a marker that is a
// substring of another can never clobber it. Markers not present in
// the vault are left untouched: inventing a mapping for a hallucinated
// token would be worse than exposing the marker.
func (v *Vault) Detokenize(text string) string {
	if text == "" {
		return text
	}

	v.mu.RLock()
	tokens := make([]string, 0, len(v.byToken))
	for tok := range v.byToken {
		tokens = append(tokens, tok)
	}
	values := make(map[string]string, len(v.byToken))
	for tok, val := range v.byToken {
		values[tok] = val
	}
	v.mu.RUnlock()

	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	out := text
	for _, tok := range tokens {
		out = strings.ReplaceAll(out, tok, values[tok])
	}

	for _, unresolved := range markerPattern.FindAllString(out, -1) {
		log.Printf("detokenize: unmapped marker %s left as-is", unresolved)
	}
	return out
}
