package dispatch

import (
	"fmt"
	"math"
	"strconv"

	"payhook/internal/bank"
	"payhook/internal/event"
	"payhook/internal/rules"
)

// payload is a fully rendered remote call: which provider operation to
// invoke, against which account, for how much.
type payload struct {
	action       rules.ActionType
	accountID    string
	amount       bank.Amount
	counterparty bank.Counterparty
	description  string
}

// render builds the provider payload for an action against the matched
// event. A non-empty skip reason means a guard condition declined the
// action; an error means the event is missing a field the action needs.
func render(action rules.Action, ev *event.Event, accounts []bank.Account) (*payload, string, error) {
	dest := action.Data.Destination(action.Type)
	if dest == nil {
		return nil, "", fmt.Errorf("action %s has no destination", action.Type)
	}

	accountID, ok := ev.ResolveString("monetary_account_id")
	if !ok {
		return nil, "", fmt.Errorf("event has no monetary_account_id")
	}
	amountValue, ok := ev.ResolveString("amount.value")
	if !ok {
		return nil, "", fmt.Errorf("event has no amount.value")
	}
	eventAmount, err := strconv.ParseFloat(amountValue, 64)
	if err != nil {
		return nil, "", fmt.Errorf("unparseable amount.value %q: %w", amountValue, err)
	}
	currency, ok := ev.ResolveString("amount.currency")
	if !ok {
		currency = "EUR"
	}
	eventDescription, _ := ev.ResolveString("description")

	// Dry runs never contact the provider, so accounts are unknown and
	// the restriction is only enforced on live dispatch.
	if action.Data.OnlyAllowOwnAccounts && accounts != nil && !ownAccount(accounts, dest.IBAN) {
		return nil, fmt.Sprintf("destination %s is not an own account", dest.IBAN), nil
	}

	var amount float64
	var target string
	switch action.Type {
	case rules.ActionRequestFromExpense:
		// An expense is a negative mutation; the request asks for the
		// spent amount back.
		amount = -eventAmount
		target = accountLabel(accounts, accountID)
	case rules.ActionTransferIncomingPayment:
		amount = eventAmount
		target = dest.Name
	case rules.ActionTransferRemainingBalance:
		balanceValue, ok := ev.ResolveString("balance_after_mutation.value")
		if !ok {
			return nil, "", fmt.Errorf("event has no balance_after_mutation.value")
		}
		balanceAfter, err := strconv.ParseFloat(balanceValue, 64)
		if err != nil {
			return nil, "", fmt.Errorf("unparseable balance_after_mutation.value %q: %w", balanceValue, err)
		}
		// The balance that was on the account before this mutation
		// landed, rounded down to whole cents.
		amount = math.Floor((balanceAfter-eventAmount)*100) / 100
		target = accountLabel(accounts, accountID)
	default:
		return nil, "", fmt.Errorf("unsupported action type %s", action.Type)
	}

	if amount <= 0 {
		return nil, fmt.Sprintf("requires amount > 0, got %s", formatAmount(amount)), nil
	}

	description := eventDescription
	if action.Data.Description != "" {
		description = fmt.Sprintf("%s -> %s - %s", action.Data.Description, target, eventDescription)
	}

	return &payload{
		action:       action.Type,
		accountID:    accountID,
		amount:       bank.Amount{Value: formatAmount(amount), Currency: currency},
		counterparty: bank.Counterparty{IBAN: dest.IBAN, Name: dest.Name},
		description:  description,
	}, "", nil
}

// ownAccount reports whether the IBAN belongs to one of the user's own
// accounts.
func ownAccount(accounts []bank.Account, iban string) bool {
	for _, acc := range accounts {
		if acc.IBAN == iban {
			return true
		}
	}
	return false
}

// accountLabel describes the source account in rendered descriptions.
func accountLabel(accounts []bank.Account, accountID string) string {
	for _, acc := range accounts {
		if acc.ID == accountID {
			return acc.Description
		}
	}
	return accountID
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
