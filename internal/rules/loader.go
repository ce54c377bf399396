package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ValidationError reports a malformed rule definition. It is fatal at load
// time: the engine refuses to start with a partially-valid rule set.
type ValidationError struct {
	File   string
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("rules: %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("rules: %s: rule %q: %s", e.File, e.Rule, e.Reason)
}

// LoadDir loads every *.rules.json file in dir, in lexical order, and returns
// the combined, validated rule set.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("rules: read dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rules.json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	var defs []Definition
	for _, file := range files {
		loaded, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}

// LoadFile loads and validates one rule file.
func LoadFile(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var defs []Definition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, &ValidationError{File: path, Reason: err.Error()}
	}

	for i := range defs {
		if err := validateDefinition(&defs[i]); err != nil {
			err.File = path
			return nil, err
		}
	}
	return defs, nil
}

func validateDefinition(def *Definition) *ValidationError {
	fail := func(reason string) *ValidationError {
		return &ValidationError{Rule: def.Name, Reason: reason}
	}

	if def.Name == "" {
		return fail("name is required")
	}

	switch def.Action.Type {
	case ActionRequestFromExpense:
		if def.Action.Data.RequestFrom == nil {
			return fail("action REQUEST_FROM_EXPENSE requires request_from data")
		}
	case ActionTransferIncomingPayment:
		if def.Action.Data.ForwardPaymentTo == nil {
			return fail("action TRANSFER_INCOMING_PAYMENT requires forward_payment_to data")
		}
	case ActionTransferRemainingBalance:
		if def.Action.Data.TransferRemainingBalanceTo == nil {
			return fail("action TRANSFER_REMAINING_BALANCE requires transfer_remaining_balance_to data")
		}
	case ActionDummy:
		// No payload.
	default:
		return fail(fmt.Sprintf("unknown action type %q", def.Action.Type))
	}

	if cp := def.Action.Data.Destination(def.Action.Type); cp != nil {
		if cp.IBAN == "" || cp.Name == "" {
			return fail("action destination requires both iban and name")
		}
	}

	if len(def.Action.Events) == 0 {
		return fail("action must subscribe to at least one event type")
	}
	for _, et := range def.Action.Events {
		if !et.Valid() {
			return fail(fmt.Sprintf("unknown event type %q", et))
		}
	}

	if err := validateNode(&def.Rule); err != nil {
		err.Rule = def.Name
		return err
	}
	return nil
}

func validateNode(n *Node) *ValidationError {
	fail := func(reason string) *ValidationError {
		return &ValidationError{Reason: reason}
	}

	switch {
	case n.Group != nil:
		g := n.Group
		switch g.Condition {
		case GroupAll, GroupAny, GroupNone:
		default:
			return fail(fmt.Sprintf("unknown group condition %q", g.Condition))
		}
		for i := range g.Children {
			if err := validateNode(&g.Children[i]); err != nil {
				return err
			}
		}
		return nil

	case n.Property != nil:
		p := n.Property
		if !propertyOperators[p.Type] {
			return fail(fmt.Sprintf("unknown operator %q", p.Type))
		}
		if p.Property == "" {
			return fail(fmt.Sprintf("operator %s requires a property path", p.Type))
		}
		switch p.Type {
		case OpRegex:
			if len(p.Value) != 1 {
				return fail("REGEX requires exactly one pattern value")
			}
			if _, err := regexp.Compile(p.Value[0]); err != nil {
				return fail(fmt.Sprintf("pattern does not compile: %v", err))
			}
		case OpEquals, OpDoesNotEqual, OpContains, OpDoesNotContain:
			if len(p.Value) == 0 {
				return fail(fmt.Sprintf("operator %s requires a value", p.Type))
			}
		}
		return nil

	case n.Balance != nil:
		b := n.Balance
		switch b.By {
		case CompareExact, CompareAtLeast, CompareAtMost:
		default:
			return fail(fmt.Sprintf("unknown comparator %q", b.By))
		}
		if b.Type == OpBalanceIncreasedBy || b.Type == OpBalanceDecreasedBy {
			if b.Value == 0 {
				return fail(fmt.Sprintf("operator %s requires a non-zero value", b.Type))
			}
		}
		return nil

	default:
		return fail("condition node is empty")
	}
}
