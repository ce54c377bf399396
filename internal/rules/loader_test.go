package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/event"
)

const groceryRules = `[
	{
		"name": "groceries-to-shared-account",
		"action": {
			"type": "REQUEST_FROM_EXPENSE",
			"events": ["PAYMENT_CREATED"],
			"data": {
				"request_from": {"name": "Shared account", "iban": "NL09BUNQ000654321"},
				"description": "Groceries"
			},
			"dry_run": false
		},
		"rule": {
			"condition": "ALL",
			"rules": [
				{"type": "EQUALS", "property": "amount.currency", "value": "EUR"},
				{"type": "IS_NEGATIVE", "property": "amount.value"},
				{
					"condition": "ANY",
					"rules": [
						{"type": "CONTAINS", "property": "counterparty_alias.display_name", "value": ["Albert Heijn", "Lidl"]}
					]
				}
			]
		}
	}
]`

func writeRules(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "grocery.rules.json", groceryRules)

	defs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, "groceries-to-shared-account", def.Name)
	assert.Equal(t, ActionRequestFromExpense, def.Action.Type)
	assert.Equal(t, []event.Type{event.TypePaymentCreated}, def.Action.Events)
	require.NotNil(t, def.Action.Data.RequestFrom)
	assert.Equal(t, "NL09BUNQ000654321", def.Action.Data.RequestFrom.IBAN)

	require.NotNil(t, def.Rule.Group)
	assert.Equal(t, GroupAll, def.Rule.Group.Condition)
	require.Len(t, def.Rule.Group.Children, 3)
	assert.NotNil(t, def.Rule.Group.Children[0].Property)
	assert.NotNil(t, def.Rule.Group.Children[2].Group)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir, "b.rules.json", groceryRules)
	writeRules(t, dir, "a.rules.json", `[
		{
			"name": "log-only",
			"action": {"type": "DUMMY", "events": ["PAYMENT_RECEIVED"]},
			"rule": {"condition": "ALL", "rules": []}
		}
	]`)
	writeRules(t, dir, "ignored.json", `not even json`)

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	// Lexical file order is declaration order.
	assert.Equal(t, "log-only", defs[0].Name)
	assert.Equal(t, "groceries-to-shared-account", defs[1].Name)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `[{"action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"condition": "ALL", "rules": []}}]`},
		{"unknown action type", `[{"name": "x", "action": {"type": "WIRE_EVERYTHING", "events": ["PAYMENT_CREATED"]}, "rule": {"condition": "ALL", "rules": []}}]`},
		{"missing action data", `[{"name": "x", "action": {"type": "REQUEST_FROM_EXPENSE", "events": ["PAYMENT_CREATED"]}, "rule": {"condition": "ALL", "rules": []}}]`},
		{"destination without iban", `[{"name": "x", "action": {"type": "REQUEST_FROM_EXPENSE", "events": ["PAYMENT_CREATED"], "data": {"request_from": {"name": "Shared"}}}, "rule": {"condition": "ALL", "rules": []}}]`},
		{"no events", `[{"name": "x", "action": {"type": "DUMMY", "events": []}, "rule": {"condition": "ALL", "rules": []}}]`},
		{"unknown event type", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_EXPLODED"]}, "rule": {"condition": "ALL", "rules": []}}]`},
		{"unknown operator", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"type": "ALMOST_EQUALS", "property": "description", "value": "x"}}]`},
		{"operator without property", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"type": "EQUALS", "value": "x"}}]`},
		{"equals without value", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"type": "EQUALS", "property": "description"}}]`},
		{"regex does not compile", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"type": "REGEX", "property": "description", "value": "("}}]`},
		{"unknown group condition", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"condition": "MOST", "rules": []}}]`},
		{"balance by without value", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"type": "BALANCE_DECREASED_BY", "by": "AT_LEAST"}}]`},
		{"balance unknown comparator", `[{"name": "x", "action": {"type": "DUMMY", "events": ["PAYMENT_CREATED"]}, "rule": {"type": "BALANCE_DECREASED_BY", "value": 5, "by": "ROUGHLY"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeRules(t, dir, "bad.rules.json", tt.body)

			_, err := LoadFile(path)
			require.Error(t, err)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestStore_Candidates(t *testing.T) {
	defs := []Definition{
		{Name: "first", Action: Action{Type: ActionDummy, Events: []event.Type{event.TypePaymentCreated}}},
		{Name: "second", Action: Action{Type: ActionDummy, Events: []event.Type{event.TypePaymentReceived}}},
		{Name: "third", Action: Action{Type: ActionDummy, Events: []event.Type{event.TypePaymentCreated, event.TypeMutationCreated}}},
	}
	store := NewStore(defs)

	got := store.Candidates(event.TypePaymentCreated)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "third", got[1].Name)

	assert.Empty(t, store.Candidates(event.TypeRequestInquiryCreated))
}

func TestStore_SwapReplacesWholeSet(t *testing.T) {
	store := NewStore([]Definition{
		{Name: "old", Action: Action{Type: ActionDummy, Events: []event.Type{event.TypePaymentCreated}}},
	})

	store.Swap([]Definition{
		{Name: "new", Action: Action{Type: ActionDummy, Events: []event.Type{event.TypePaymentCreated}}},
	})

	got := store.Candidates(event.TypePaymentCreated)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Name)
}
