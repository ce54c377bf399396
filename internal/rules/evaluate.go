package rules

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"payhook/internal/event"
)

// Evaluator runs condition trees against events. Evaluation is pure and
// total: every node resolves to a boolean, and anything anomalous (bad regex,
// unparseable number) fails closed as false instead of propagating.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator builds an evaluator. A nil logger silences anomaly logging.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{logger: logger}
}

// Evaluate reports whether the condition tree rooted at n matches the event.
func (ev *Evaluator) Evaluate(n *Node, e *event.Event) bool {
	switch {
	case n == nil:
		return false
	case n.Group != nil:
		return ev.evaluateGroup(n.Group, e)
	case n.Property != nil:
		return ev.evaluateProperty(n.Property, e)
	case n.Balance != nil:
		return ev.evaluateBalance(n.Balance, e)
	default:
		return false
	}
}

func (ev *Evaluator) evaluateGroup(g *Group, e *event.Event) bool {
	switch g.Condition {
	case GroupAll:
		// Vacuous AND: an empty group matches.
		for i := range g.Children {
			if !ev.Evaluate(&g.Children[i], e) {
				return false
			}
		}
		return true
	case GroupAny:
		for i := range g.Children {
			if ev.Evaluate(&g.Children[i], e) {
				return true
			}
		}
		return false
	case GroupNone:
		for i := range g.Children {
			if ev.Evaluate(&g.Children[i], e) {
				return false
			}
		}
		return true
	default:
		ev.logger.Debug("unknown group condition", "condition", string(g.Condition), "group", g.Name)
		return false
	}
}

func (ev *Evaluator) evaluateProperty(p *PropertyRule, e *event.Event) bool {
	resolved, present := e.ResolveString(p.Property)

	switch p.Type {
	case OpIsEmpty:
		return !present || resolved == ""
	case OpIsNotEmpty:
		return present && resolved != ""
	case OpIsNegative:
		f, ok := parseNumber(resolved, present)
		return ok && f < 0
	case OpIsPositive:
		f, ok := parseNumber(resolved, present)
		return ok && f > 0
	case OpEquals:
		if !present {
			return false
		}
		return matchAny(resolved, p.Value, p.CaseSensitive, equalsFold)
	case OpDoesNotEqual:
		// Absent never equals anything.
		if !present {
			return true
		}
		return !matchAny(resolved, p.Value, p.CaseSensitive, equalsFold)
	case OpContains:
		if !present {
			return false
		}
		return matchAny(resolved, p.Value, p.CaseSensitive, containsFold)
	case OpDoesNotContain:
		// Absent contains nothing.
		if !present {
			return true
		}
		return !matchAny(resolved, p.Value, p.CaseSensitive, containsFold)
	case OpRegex:
		if !present || len(p.Value) == 0 {
			return false
		}
		return ev.regexMatch(p, resolved)
	default:
		ev.logger.Debug("unknown property operator", "operator", string(p.Type), "rule", p.Name)
		return false
	}
}

// regexMatch anchors the pattern so it must cover the whole resolved value.
func (ev *Evaluator) regexMatch(p *PropertyRule, resolved string) bool {
	pattern := `\A(?:` + p.Value[0] + `)\z`
	if !p.CaseSensitive {
		pattern = `(?i)` + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		ev.logger.Debug("rule regex does not compile", "rule", p.Name, "pattern", p.Value[0], "error", err)
		return false
	}
	return re.MatchString(resolved)
}

func (ev *Evaluator) evaluateBalance(b *BalanceRule, e *event.Event) bool {
	raw, present := e.ResolveString("amount.value")
	delta, ok := parseNumber(raw, present)
	if !ok {
		ev.logger.Debug("balance rule on event without parseable amount", "rule", b.Name)
		return false
	}

	switch b.Type {
	case OpBalanceIncreased:
		return delta > 0
	case OpBalanceDecreased:
		return delta < 0
	case OpBalanceIncreasedBy:
		return delta > 0 && compareCents(delta, b.Value, b.By)
	case OpBalanceDecreasedBy:
		return delta < 0 && compareCents(delta, b.Value, b.By)
	default:
		ev.logger.Debug("unknown balance operator", "operator", string(b.Type), "rule", b.Name)
		return false
	}
}

// compareCents compares magnitudes in currency minor units so "15.10" and
// 15.1 are the same amount.
func compareCents(delta, want float64, by Comparator) bool {
	got := int64(math.Round(math.Abs(delta) * 100))
	target := int64(math.Round(math.Abs(want) * 100))
	switch by {
	case CompareAtLeast:
		return got >= target
	case CompareAtMost:
		return got <= target
	default:
		return got == target
	}
}

func parseNumber(s string, present bool) (float64, bool) {
	if !present {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

type foldMatch func(resolved, candidate string) bool

func equalsFold(resolved, candidate string) bool {
	return resolved == candidate
}

func containsFold(resolved, candidate string) bool {
	return strings.Contains(resolved, strings.TrimSpace(candidate))
}

// matchAny applies OR semantics over the value list: true if any element
// matches. Case folding lowers both sides when the rule is case-insensitive.
func matchAny(resolved string, values ValueList, caseSensitive bool, match foldMatch) bool {
	if !caseSensitive {
		resolved = strings.ToLower(resolved)
	}
	for _, candidate := range values {
		if !caseSensitive {
			candidate = strings.ToLower(candidate)
		}
		if match(resolved, candidate) {
			return true
		}
	}
	return false
}
