package rules

import (
	"payhook/internal/event"
)

// ActionType names the financial action a rule triggers when it matches.
type ActionType string

const (
	// ActionRequestFromExpense requests the spent amount back from a
	// configured counterparty after an outgoing payment.
	ActionRequestFromExpense ActionType = "REQUEST_FROM_EXPENSE"
	// ActionTransferIncomingPayment forwards an incoming payment to a
	// configured destination account.
	ActionTransferIncomingPayment ActionType = "TRANSFER_INCOMING_PAYMENT"
	// ActionTransferRemainingBalance sweeps the pre-mutation balance to a
	// configured destination account.
	ActionTransferRemainingBalance ActionType = "TRANSFER_REMAINING_BALANCE"
	// ActionDummy matches and audits without any external side effect.
	ActionDummy ActionType = "DUMMY"
)

// CounterParty identifies a destination or source account for an action.
type CounterParty struct {
	Name string `json:"name"`
	IBAN string `json:"iban"`
}

// ActionData carries the action-specific payload. Which pointer must be set
// depends on the action type; the loader enforces the pairing.
type ActionData struct {
	Description                string        `json:"description,omitempty"`
	OnlyAllowOwnAccounts       bool          `json:"only_allow_own_accounts,omitempty"`
	RequestFrom                *CounterParty `json:"request_from,omitempty"`
	ForwardPaymentTo           *CounterParty `json:"forward_payment_to,omitempty"`
	TransferRemainingBalanceTo *CounterParty `json:"transfer_remaining_balance_to,omitempty"`
}

// Destination returns the counterparty the action pays or requests from.
func (d ActionData) Destination(typ ActionType) *CounterParty {
	switch typ {
	case ActionRequestFromExpense:
		return d.RequestFrom
	case ActionTransferIncomingPayment:
		return d.ForwardPaymentTo
	case ActionTransferRemainingBalance:
		return d.TransferRemainingBalanceTo
	default:
		return nil
	}
}

// Action binds an action type to the event types it listens to.
type Action struct {
	Type   ActionType   `json:"type"`
	Events []event.Type `json:"events"`
	Data   ActionData   `json:"data"`
	DryRun bool         `json:"dry_run"`
}

// ListensTo reports whether the action subscribes to the given event type.
func (a Action) ListensTo(t event.Type) bool {
	for _, et := range a.Events {
		if et == t {
			return true
		}
	}
	return false
}

// Definition is one named rule: a condition tree plus the action to dispatch
// when it matches. Definitions are immutable after loading.
type Definition struct {
	Name   string `json:"name"`
	Action Action `json:"action"`
	Rule   Node   `json:"rule"`
}
