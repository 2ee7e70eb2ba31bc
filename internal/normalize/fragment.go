package normalize

import (
	"regexp"
	"strings"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

var (
	subscriptionRe = regexp.MustCompile(`(?i)subscri(?:be|ption)|recurring|auto[- ]?(?:delivery|ship|replenish)|deliver(?:ed|y)? every|every\s+\d+\s*(?:days?|weeks?|months?)|\bsave\s+\d+\s*%`)
	oneTimeRe      = regexp.MustCompile(`(?i)one[- ]?time|buy once|single purchase|one[- ]off`)
	compareAtRe    = regexp.MustCompile(`(?i)\bwas\b|regular price|compare at|\breg\.|\bmsrp\b|list price|retail price|original price`)
	// frequency cues that follow an amount ("$19.99/mo", "$20 every 30 days")
	trailingFreqRe = regexp.MustCompile(`(?i)^\s*(?:/|per|a|every)\s*(?:\d+\s*)?(?:mo|mos|month|months|wk|week|weeks|day|days|yr|year)\b`)
	rangeSepRe     = regexp.MustCompile(`^\s*(?:-|–|—|to)\s*$`)
	frequencyRe    = regexp.MustCompile(`(?i)(?:/|\bper|\bevery)\s*(?:\d+\s*)?(?:mo|mos|month|months|wk|week|weeks|day|days|yr|year)\b`)
)

var kindKeywords = []struct {
	re   *regexp.Regexp
	kind types.PriceKind
}{
	{subscriptionRe, types.PriceSubscription},
	{oneTimeRe, types.PriceOneTime},
	{compareAtRe, types.PriceCompareAt},
}

type token struct {
	start, end int
	amount     string
	marker     string
	after      string // rest of the token's line, up to the next token
	kind       types.PriceKind
	inherited  bool
}

// Fragment extracts every currency-marked amount in text. Each quote's kind
// comes from, in order: a keyword earlier on its own line, a frequency cue
// or keyword later on its own line, a keyword on an earlier line, the
// previous amount's kind when only whitespace separates them, and finally
// the hint. A keyword between two amounts on one line labels the later
// amount unless that amount carries a trailing label of its own. Two
// amounts in text with no keywords at all read as a compare-at/now pair.
// When explicitCurrency is set, bare numbers count as amounts too.
func (n *Normalizer) Fragment(text, explicitCurrency string, hint types.PriceKind) []types.PriceQuote {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	toks := n.tokens(text, explicitCurrency != "")
	if len(toks) == 0 {
		return nil
	}

	def := hint
	if def == "" {
		def = types.PriceOneTime
	}

	for i := range toks {
		next := len(text)
		if i+1 < len(toks) {
			next = toks[i+1].start
		}
		after := text[toks[i].end:next]
		if nl := strings.IndexByte(after, '\n'); nl >= 0 {
			after = after[:nl]
		}
		toks[i].after = after
	}

	_, anyKeyword := nearestKind(text)
	claimed := 0
	for i := range toks {
		t := &toks[i]
		prevEnd := 0
		if i > 0 {
			prevEnd = toks[i-1].end
		}
		before, earlier := splitLastLine(text[max(prevEnd, claimed):t.start])
		trailingKind, trailing := firstKind(t.after)

		if kind, ok := nearestKind(before); ok {
			t.kind = kind
			continue
		}
		switch {
		case trailingFreqRe.MatchString(t.after):
			t.kind = types.PriceSubscription
			anyKeyword = true
		case trailing && ownsTrailing(text, toks, i):
			t.kind = trailingKind
			claimed = t.end + len(t.after)
		default:
			if kind, ok := nearestKind(earlier); ok {
				t.kind = kind
			} else if i > 0 && strings.TrimSpace(text[prevEnd:t.start]) == "" {
				t.kind = toks[i-1].kind
				t.inherited = true
			} else {
				t.kind = def
			}
		}
	}

	if len(toks) == 2 {
		between := text[toks[0].end:toks[1].start]
		switch {
		case rangeSepRe.MatchString(between):
			toks[0].kind, toks[1].kind = def, def
		case !anyKeyword && hint == "":
			toks[0].kind, toks[1].kind = types.PriceCompareAt, types.PriceOneTime
		case toks[1].inherited && toks[0].kind != types.PriceCompareAt:
			toks[0].kind = types.PriceCompareAt
		}
	}

	fallback := n.Currency(explicitCurrency, text)
	quotes := make([]types.PriceQuote, 0, len(toks))
	for _, t := range toks {
		d, ok := n.ParseAmount(t.amount)
		if !ok {
			continue
		}
		currency := fallback
		if t.marker != "" {
			currency = n.symbolCurrency(t.marker)
		}
		quotes = append(quotes, types.PriceQuote{
			Amount:   d,
			Currency: currency,
			Kind:     t.kind,
			Raw:      strings.TrimSpace(text[t.start:t.end]),
		})
	}
	return quotes
}

// ownsTrailing reports whether the keyword after token i labels token i
// rather than the next amount on the same line.
func ownsTrailing(text string, toks []token, i int) bool {
	if i+1 == len(toks) || strings.Contains(text[toks[i].end:toks[i+1].start], "\n") {
		return true
	}
	next := toks[i+1].after
	_, labelled := firstKind(next)
	return labelled || trailingFreqRe.MatchString(next)
}

func splitLastLine(s string) (line, earlier string) {
	nl := strings.LastIndexByte(s, '\n')
	if nl < 0 {
		return s, ""
	}
	return s[nl+1:], s[:nl+1]
}

func (n *Normalizer) tokens(text string, allowBare bool) []token {
	var toks []token
	for _, m := range tokenRe.FindAllStringSubmatchIndex(text, -1) {
		t := token{start: m[0], end: m[1]}
		if m[2] >= 0 {
			t.marker = text[m[2]:m[3]]
			t.amount = text[m[4]:m[5]]
		} else {
			t.amount = text[m[6]:m[7]]
			t.marker = text[m[8]:m[9]]
		}
		toks = append(toks, t)
	}
	if len(toks) > 0 || !allowBare {
		return toks
	}
	for _, m := range bareAmountRe.FindAllStringIndex(text, -1) {
		toks = append(toks, token{start: m[0], end: m[1], amount: text[m[0]:m[1]]})
	}
	return toks
}

// nearestKind returns the kind of the keyword closest to the end of ctx.
func nearestKind(ctx string) (types.PriceKind, bool) {
	best, bestEnd := types.PriceKind(""), -1
	for _, c := range kindKeywords {
		locs := c.re.FindAllStringIndex(ctx, -1)
		if len(locs) == 0 {
			continue
		}
		if end := locs[len(locs)-1][1]; end > bestEnd {
			best, bestEnd = c.kind, end
		}
	}
	return best, bestEnd >= 0
}

// firstKind returns the kind of the keyword closest to the start of s.
func firstKind(s string) (types.PriceKind, bool) {
	best, bestStart := types.PriceKind(""), -1
	for _, c := range kindKeywords {
		loc := c.re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		if bestStart < 0 || loc[0] < bestStart {
			best, bestStart = c.kind, loc[0]
		}
	}
	return best, bestStart >= 0
}

// Labelled reports whether text carries any price-kind keyword or a
// frequency cue.
func Labelled(text string) bool {
	if _, ok := nearestKind(text); ok {
		return true
	}
	return frequencyRe.MatchString(text)
}

// Kind classifies free text as subscription or one-time; "" when neither.
func Kind(text string) types.PriceKind {
	kind, ok := nearestKind(text)
	if !ok || kind == types.PriceCompareAt {
		return ""
	}
	return kind
}
