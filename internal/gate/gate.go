// Package gate decides whether a query belongs to the telecom domain.
package gate

import (
	"regexp"
	"strings"
)

// DefaultTerms is the built-in telecom vocabulary: radio and network terms,
// site power terms, and fault and diagnostic terms.
var DefaultTerms = []string{
	// Network and radio
	"5G", "4G", "3G", "network", "tower", "signal", "latency", "bandwidth",
	"telecom", "fiber", "Switch", "VoLTE", "spectrum", "wireless", "antenna",
	"cellular", "coverage", "base station", "call drop", "frequency", "roaming",
	"backhaul", "microwave link", "carrier aggregation", "handovers",

	// Power
	"power supply", "UPS", "voltage", "current", "battery backup", "inverter",
	"DC rectifier", "generator", "power failure", "electrical outage",
	"load balancing", "fault protection", "circuit breaker", "transformer",
	"power distribution unit",

	// Faults and diagnostics
	"fault", "error", "diagnostics", "debugging", "alarm", "packet loss",
	"throughput", "interference", "jitter", "latency issues", "outage",
	"connectivity issue", "network congestion", "slow speed", "ping test",
	"signal drop", "no service", "modulation", "demodulation", "retransmission",
	"bit error rate", "network reset",
}

// Gate matches queries against a fixed vocabulary. The pattern is compiled
// once; a Gate is safe for concurrent use.
type Gate struct {
	pattern *regexp.Regexp
	terms   []string
}

// New compiles terms into a single case-insensitive, whole-word pattern.
// Words of a multi-word term may be separated by any run of whitespace.
// An empty vocabulary yields a gate that rejects everything.
func New(terms []string) *Gate {
	var alts []string
	var kept []string
	for _, term := range terms {
		words := strings.Fields(term)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
		kept = append(kept, term)
	}

	g := &Gate{terms: kept}
	if len(alts) > 0 {
		g.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	return g
}

// Default returns a gate over DefaultTerms.
func Default() *Gate {
	return New(DefaultTerms)
}

// Allows reports whether query mentions at least one vocabulary term.
func (g *Gate) Allows(query string) bool {
	if g.pattern == nil {
		return false
	}
	return g.pattern.MatchString(query)
}

// Terms returns the vocabulary the gate was built from.
func (g *Gate) Terms() []string {
	out := make([]string, len(g.terms))
	copy(out, g.terms)
	return out
}
