package discount

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule maps a user-entered code to a percentage-off rate in basis points.
type Rule struct {
	Code       string
	PercentBps int32
}

// Table is an injectable lookup of discount codes. Resolution is
// case-insensitive and an unknown code is a valid "no effect" outcome,
// not an error.
type Table struct {
	rules map[string]Rule
}

// NewTable builds a table from the provided rules. Codes are normalised to
// upper case; rates are clamped to [0, 10000].
func NewTable(rules []Rule) *Table {
	t := &Table{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		code := strings.ToUpper(strings.TrimSpace(r.Code))
		if code == "" {
			continue
		}
		if r.PercentBps < 0 {
			r.PercentBps = 0
		}
		if r.PercentBps > 10000 {
			r.PercentBps = 10000
		}
		t.rules[code] = Rule{Code: code, PercentBps: r.PercentBps}
	}
	return t
}

// ParseTable reads a "CODE:bps,CODE:bps" specification, as supplied via
// configuration.
func ParseTable(spec string) (*Table, error) {
	if strings.TrimSpace(spec) == "" {
		return NewTable(nil), nil
	}
	var rules []Rule
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, value, found := strings.Cut(entry, ":")
		if !found {
			return nil, fmt.Errorf("discount: malformed entry %q", entry)
		}
		bps, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("discount: parse rate for %q: %w", code, err)
		}
		rules = append(rules, Rule{Code: code, PercentBps: int32(bps)})
	}
	return NewTable(rules), nil
}

// DefaultTable returns the rules of the reference deployment.
func DefaultTable() *Table {
	return NewTable([]Rule{
		{Code: "SAVE10", PercentBps: 1000},
		{Code: "SAVE20", PercentBps: 2000},
		{Code: "SAVE30", PercentBps: 3000},
		{Code: "FREE", PercentBps: 10000},
	})
}

// Resolve looks up a code. The second return reports whether the code
// matched; callers decide whether a miss is worth surfacing to the user.
func (t *Table) Resolve(code string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	r, ok := t.rules[strings.ToUpper(strings.TrimSpace(code))]
	return r, ok
}

// Codes returns the configured codes, useful for admin listings.
func (t *Table) Codes() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	return out
}
