// Package rules implements the declarative rule set: the recursive condition
// tree, its evaluator, the validated rule definitions, and the store that
// answers which rules listen to a given event type.
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// GroupCondition combines the results of a group's child nodes.
type GroupCondition string

const (
	GroupAll  GroupCondition = "ALL"
	GroupAny  GroupCondition = "ANY"
	GroupNone GroupCondition = "NONE"
)

// Operator is the comparison a property rule applies to a resolved value.
type Operator string

const (
	OpRegex          Operator = "REGEX"
	OpEquals         Operator = "EQUALS"
	OpDoesNotEqual   Operator = "DOES_NOT_EQUAL"
	OpIsEmpty        Operator = "IS_EMPTY"
	OpIsNotEmpty     Operator = "IS_NOT_EMPTY"
	OpIsNegative     Operator = "IS_NEGATIVE"
	OpIsPositive     Operator = "IS_POSITIVE"
	OpContains       Operator = "CONTAINS"
	OpDoesNotContain Operator = "DOES_NOT_CONTAIN"
)

// BalanceOperator checks the balance delta carried by a mutation event.
type BalanceOperator string

const (
	OpBalanceIncreased   BalanceOperator = "BALANCE_INCREASED"
	OpBalanceDecreased   BalanceOperator = "BALANCE_DECREASED"
	OpBalanceIncreasedBy BalanceOperator = "BALANCE_INCREASED_BY"
	OpBalanceDecreasedBy BalanceOperator = "BALANCE_DECREASED_BY"
)

// Comparator qualifies the "_BY" balance operators.
type Comparator string

const (
	CompareExact   Comparator = "EXACT"
	CompareAtLeast Comparator = "AT_LEAST"
	CompareAtMost  Comparator = "AT_MOST"
)

// Node is one vertex of the condition tree: exactly one of Group, Property,
// or Balance is set. The tree is built once from validated configuration and
// owns its children exclusively, so evaluation needs no locking.
type Node struct {
	Group    *Group
	Property *PropertyRule
	Balance  *BalanceRule
}

// Group nests child nodes under an ALL/ANY/NONE combinator.
type Group struct {
	Name      string
	Condition GroupCondition
	Children  []Node
}

// PropertyRule compares a dotted-path property of the event against a value
// (or any element of a value list).
type PropertyRule struct {
	Name          string
	Type          Operator
	Property      string
	Value         ValueList
	CaseSensitive bool
}

// BalanceRule checks the direction or magnitude of the balance change.
type BalanceRule struct {
	Name  string
	Type  BalanceOperator
	Value float64
	By    Comparator
}

// ValueList is a rule value that may be written as a single scalar or a list
// of scalars. Elements keep their canonical string form.
type ValueList []string

func (v *ValueList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case nil:
		*v = nil
		return nil
	case []any:
		out := make(ValueList, 0, len(val))
		for _, item := range val {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*v = out
		return nil
	default:
		s, err := scalarString(val)
		if err != nil {
			return err
		}
		*v = ValueList{s}
		return nil
	}
}

func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("rule value must be a scalar or list of scalars, got %T", v)
	}
}

var balanceOperators = map[BalanceOperator]bool{
	OpBalanceIncreased:   true,
	OpBalanceDecreased:   true,
	OpBalanceIncreasedBy: true,
	OpBalanceDecreasedBy: true,
}

var propertyOperators = map[Operator]bool{
	OpRegex:          true,
	OpEquals:         true,
	OpDoesNotEqual:   true,
	OpIsEmpty:        true,
	OpIsNotEmpty:     true,
	OpIsNegative:     true,
	OpIsPositive:     true,
	OpContains:       true,
	OpDoesNotContain: true,
}

// rawNode covers the union of all three node shapes; UnmarshalJSON picks the
// variant by which discriminating keys are present.
type rawNode struct {
	Name          string          `json:"name"`
	Condition     GroupCondition  `json:"condition"`
	Rules         []Node          `json:"rules"`
	Type          string          `json:"type"`
	Property      string          `json:"property"`
	Value         json.RawMessage `json:"value"`
	CaseSensitive *bool           `json:"case_sensitive"`
	By            Comparator      `json:"by"`
}

// UnmarshalJSON decodes the tagged union: objects with a "condition" key are
// groups, objects whose "type" is a balance operator are balance rules, and
// everything else is a property rule.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Condition != "" {
		n.Group = &Group{
			Name:      raw.Name,
			Condition: raw.Condition,
			Children:  raw.Rules,
		}
		return nil
	}

	if balanceOperators[BalanceOperator(raw.Type)] {
		b := &BalanceRule{
			Name: raw.Name,
			Type: BalanceOperator(raw.Type),
			By:   raw.By,
		}
		if b.By == "" {
			b.By = CompareExact
		}
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &b.Value); err != nil {
				return fmt.Errorf("balance rule %q: value must be numeric: %w", raw.Name, err)
			}
		}
		n.Balance = b
		return nil
	}

	p := &PropertyRule{
		Name:          raw.Name,
		Type:          Operator(raw.Type),
		Property:      raw.Property,
		CaseSensitive: true,
	}
	if raw.CaseSensitive != nil {
		p.CaseSensitive = *raw.CaseSensitive
	}
	if len(raw.Value) > 0 {
		if err := json.Unmarshal(raw.Value, &p.Value); err != nil {
			return fmt.Errorf("property rule %q: %w", raw.Name, err)
		}
	}
	n.Property = p
	return nil
}
