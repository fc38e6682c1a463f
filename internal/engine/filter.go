// Package engine holds the in-memory view over ingested records: filter
// criteria, the record store with its filtered projection and selection,
// debounced recomputes, statistics and saved presets.
package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/eventscope/internal/config"
	"github.com/coffersTech/eventscope/internal/model"
	"github.com/coffersTech/eventscope/internal/timeutil"
)

// Criteria is the full filter state. The exported fields are edited
// directly; the derived caches (ID sets, lowercase needles, compiled
// regex, parsed time bounds) are refreshed by RecompileIDs and
// RecomputeTimeRange. Matches only consults the caches, so an edit is
// invisible until the matching derive step runs.
type Criteria struct {
	// IDInput is the raw event ID expression: comma-separated tokens,
	// each an ID, a lo-hi range, or either prefixed with ! to exclude.
	IDInput string

	// Levels enables records per severity; index by ClampLevel.
	Levels [model.LevelCount]bool

	// Provider is a case-insensitive substring match on the provider.
	Provider string

	// Query is the free-text search across message, provider, channel,
	// event data and the raw payload.
	Query         string
	CaseSensitive bool
	UseRegex      bool

	// TimeFromInput and TimeToInput are raw datetime strings, parsed by
	// RecomputeTimeRange. Bounds are inclusive.
	TimeFromInput string
	TimeToInput   string

	includeIDs    map[uint32]struct{}
	excludeIDs    map[uint32]struct{}
	providerLower string
	queryLower    string
	pattern       *regexp.Regexp
	patternBad    bool
	timeFrom      time.Time
	timeTo        time.Time
}

// NewCriteria returns a criteria matching everything.
func NewCriteria() *Criteria {
	c := &Criteria{}
	for i := range c.Levels {
		c.Levels[i] = true
	}
	return c
}

// Reset restores the match-everything state.
func (c *Criteria) Reset() {
	*c = *NewCriteria()
}

// RecompileIDs re-derives every text-based cache: the include/exclude ID
// sets, the lowercase search needles, and the compiled regex. Called
// once per debounce settle rather than per keystroke.
func (c *Criteria) RecompileIDs() {
	c.parseIDs()
	c.providerLower = strings.ToLower(c.Provider)
	c.queryLower = strings.ToLower(c.Query)
	c.compilePattern()
}

// RecomputeTimeRange re-parses the time bound inputs. Unparseable input
// leaves that bound unset.
func (c *Criteria) RecomputeTimeRange() {
	c.timeFrom, _ = timeutil.ParseInput(c.TimeFromInput)
	c.timeTo, _ = timeutil.ParseInput(c.TimeToInput)
}

// TimeBounds returns the parsed time window for pushing down into source
// queries. Zero values mean unbounded.
func (c *Criteria) TimeBounds() (from, to time.Time) {
	return c.timeFrom, c.timeTo
}

func (c *Criteria) compilePattern() {
	c.pattern = nil
	c.patternBad = false
	if !c.UseRegex || c.Query == "" {
		return
	}
	expr := c.Query
	if !c.CaseSensitive {
		expr = "(?i)" + expr
	}
	pat, err := regexp.Compile(expr)
	if err != nil {
		// An invalid pattern matches nothing until corrected.
		c.patternBad = true
		return
	}
	c.pattern = pat
}

// PatternInvalid reports whether regex mode is on but the pattern failed
// to compile, for surfacing in the status line.
func (c *Criteria) PatternInvalid() bool {
	return c.patternBad
}

func (c *Criteria) parseIDs() {
	c.includeIDs = nil
	c.excludeIDs = nil
	for _, tok := range strings.Split(c.IDInput, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		exclude := false
		if strings.HasPrefix(tok, "!") {
			exclude = true
			tok = strings.TrimSpace(tok[1:])
		}
		target := &c.includeIDs
		if exclude {
			target = &c.excludeIDs
		}
		if id, err := strconv.ParseUint(tok, 10, 32); err == nil {
			addID(target, uint32(id))
			continue
		}
		if lo, hi, ok := parseIDRange(tok); ok {
			for id := uint64(lo); id <= uint64(hi); id++ {
				addID(target, uint32(id))
			}
		}
		// Malformed tokens are ignored; the rest of the expression
		// still applies.
	}
}

func addID(set *map[uint32]struct{}, id uint32) {
	if *set == nil {
		*set = make(map[uint32]struct{})
	}
	(*set)[id] = struct{}{}
}

// parseIDRange parses "lo-hi". Reversed bounds are swapped, and a range
// is capped to MaxIDRangeSpan entries from its low end so a typo like
// "1-4000000000" cannot allocate unbounded memory.
func parseIDRange(tok string) (lo, hi uint32, ok bool) {
	i := strings.Index(tok, "-")
	if i <= 0 || i == len(tok)-1 {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(strings.TrimSpace(tok[:i]), 10, 32)
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.ParseUint(strings.TrimSpace(tok[i+1:]), 10, 32)
	if err != nil {
		return 0, 0, false
	}
	if a > b {
		a, b = b, a
	}
	if span := b - a + 1; span > config.MaxIDRangeSpan {
		b = a + config.MaxIDRangeSpan - 1
	}
	return uint32(a), uint32(b), true
}

// Matches reports whether the record passes every active criterion.
// Checks run cheapest first so the common miss is fast.
func (c *Criteria) Matches(r *model.Record) bool {
	if !c.Levels[model.ClampLevel(r.Level)] {
		return false
	}
	if len(c.excludeIDs) > 0 {
		if _, hit := c.excludeIDs[r.EventID]; hit {
			return false
		}
	}
	if len(c.includeIDs) > 0 {
		if _, hit := c.includeIDs[r.EventID]; !hit {
			return false
		}
	}
	if !c.timeFrom.IsZero() && r.Timestamp.Before(c.timeFrom) {
		return false
	}
	if !c.timeTo.IsZero() && r.Timestamp.After(c.timeTo) {
		return false
	}
	if c.Provider != "" && !containsFold(r.Provider, c.providerLower) {
		return false
	}
	return c.matchesQuery(r)
}

// matchesQuery searches the record's text fields in a fixed order:
// message, provider, channel, event data pairs, then the raw payload.
func (c *Criteria) matchesQuery(r *model.Record) bool {
	if c.Query == "" {
		return true
	}

	var match func(string) bool
	switch {
	case c.UseRegex:
		if c.pattern == nil {
			return false
		}
		match = c.pattern.MatchString
	case c.CaseSensitive:
		match = func(s string) bool { return strings.Contains(s, c.Query) }
	default:
		match = func(s string) bool { return containsFold(s, c.queryLower) }
	}

	if match(r.Message) || match(r.Provider) || match(r.Channel) {
		return true
	}
	for _, p := range r.EventData {
		if match(p.Name) || match(p.Value) {
			return true
		}
	}
	return match(r.RawPayload)
}

// ActiveCount returns how many criterion groups deviate from the
// match-everything default, for the status line.
func (c *Criteria) ActiveCount() int {
	n := 0
	if len(c.includeIDs) > 0 || len(c.excludeIDs) > 0 {
		n++
	}
	for _, enabled := range c.Levels {
		if !enabled {
			n++
			break
		}
	}
	if c.Provider != "" {
		n++
	}
	if c.Query != "" {
		n++
	}
	if !c.timeFrom.IsZero() || !c.timeTo.IsZero() {
		n++
	}
	return n
}

// containsFold is a case-insensitive substring test. needleLower must
// already be lowercased. Pure-ASCII haystacks take a byte-wise path;
// anything else falls back to a full Unicode lowering.
func containsFold(haystack, needleLower string) bool {
	if needleLower == "" {
		return true
	}
	if isASCII(haystack) {
		return asciiContainsLower(haystack, needleLower)
	}
	return strings.Contains(strings.ToLower(haystack), needleLower)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func asciiContainsLower(s, sub string) bool {
	n := len(sub)
	if n > len(s) {
		return false
	}
	for i := 0; i+n <= len(s); i++ {
		if asciiEqualLower(s[i:i+n], sub) {
			return true
		}
	}
	return false
}

func asciiEqualLower(s, sub string) bool {
	for i := 0; i < len(sub); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != sub[i] {
			return false
		}
	}
	return true
}
