package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"payhook/internal/bank"
	"payhook/internal/dispatch/mocks"
	"payhook/internal/event"
	"payhook/internal/idempotency"
	"payhook/internal/rules"
	"payhook/pkg/platform/circuit"
)

const testUserID = "u-1"

func expensePayment(t *testing.T) *event.Event {
	t.Helper()
	return event.New(event.CategoryMutation, event.TypeMutationCreated, event.KindPayment, map[string]any{
		"id":                  float64(143),
		"monetary_account_id": float64(7),
		"description":         "Groceries week 34",
		"amount":              map[string]any{"value": "-15.00", "currency": "EUR"},
		"balance_after_mutation": map[string]any{
			"value": "235.50", "currency": "EUR",
		},
	})
}

func ownAccounts() []bank.Account {
	return []bank.Account{
		{ID: "7", Description: "Checking", IBAN: "NL91ABNA0417164300", Balance: bank.Amount{Value: "235.50", Currency: "EUR"}},
		{ID: "8", Description: "Savings", IBAN: "NL69INGB0123456789", Balance: bank.Amount{Value: "1000.00", Currency: "EUR"}},
	}
}

func requestRule(dryRun bool) rules.Definition {
	return rules.Definition{
		Name: "split groceries",
		Action: rules.Action{
			Type:   rules.ActionRequestFromExpense,
			Events: []event.Type{event.TypeMutationCreated},
			Data: rules.ActionData{
				Description: "Split",
				RequestFrom: &rules.CounterParty{Name: "Roommate", IBAN: "NL02RABO0123456789"},
			},
			DryRun: dryRun,
		},
	}
}

func TestDispatch_RequestFromExpense(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	ev := expensePayment(t)

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)
	client.EXPECT().
		CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, req bank.MoneyRequest) error {
			assert.Equal(t, "15.00", req.Amount.Value)
			assert.Equal(t, "EUR", req.Amount.Currency)
			assert.Equal(t, "NL02RABO0123456789", req.Counterparty.IBAN)
			assert.Equal(t, "Split -> Checking - Groceries week 34", req.Description)
			return nil
		})

	outcome := d.Dispatch(context.Background(), testUserID, requestRule(false), ev)
	assert.Equal(t, StatusDispatched, outcome.Status)
}

func TestDispatch_DuplicateDeliverySkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	ev := expensePayment(t)

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)
	client.EXPECT().CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).Return(nil)

	first := d.Dispatch(context.Background(), testUserID, requestRule(false), ev)
	require.Equal(t, StatusDispatched, first.Status)

	// Redelivery of the same event for the same rule never reaches the
	// provider again.
	second := d.Dispatch(context.Background(), testUserID, requestRule(false), ev)
	assert.Equal(t, StatusSkippedDuplicate, second.Status)
}

func TestDispatch_DryRunNeverCallsClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	ev := expensePayment(t)

	// No expectations set: any client call fails the test.
	outcome := d.Dispatch(context.Background(), testUserID, requestRule(true), ev)
	assert.Equal(t, StatusDryRun, outcome.Status)
}

func TestDispatch_TransientFailureRetriesThenFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client, WithRetry(3, time.Millisecond))

	ev := expensePayment(t)
	timeout := &bank.APIError{StatusCode: http.StatusBadGateway, Body: "upstream timeout"}

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)
	client.EXPECT().
		CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).
		Return(timeout).
		Times(3)

	outcome := d.Dispatch(context.Background(), testUserID, requestRule(false), ev)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "502")

	// The claim is kept: the failure is surfaced, not silently retried
	// on the next delivery.
	redelivery := d.Dispatch(context.Background(), testUserID, requestRule(false), ev)
	assert.Equal(t, StatusSkippedDuplicate, redelivery.Status)
}

func TestDispatch_TerminalFailureDoesNotRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client, WithRetry(3, time.Millisecond))

	ev := expensePayment(t)
	rejected := &bank.APIError{StatusCode: http.StatusBadRequest, Body: "invalid counterparty"}

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)
	client.EXPECT().
		CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).
		Return(rejected).
		Times(1)

	outcome := d.Dispatch(context.Background(), testUserID, requestRule(false), ev)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "400")
}

func TestDispatch_OpenBreakerFailsFastWithoutClaiming(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)

	breaker := circuit.New("bank-api", circuit.WithFailureThreshold(1))
	d := New(guard, client,
		WithBreaker(breaker),
		WithRetry(1, time.Millisecond),
		WithProbeInterval(time.Hour))

	tripEvent := expensePayment(t)
	blocked := event.New(event.CategoryMutation, event.TypeMutationCreated, event.KindPayment, map[string]any{
		"id":                  float64(144),
		"monetary_account_id": float64(7),
		"description":         "Pharmacy",
		"amount":              map[string]any{"value": "-8.20", "currency": "EUR"},
	})
	outage := &bank.APIError{StatusCode: http.StatusBadGateway, Body: "upstream down"}

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)
	client.EXPECT().CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).Return(outage)

	first := d.Dispatch(context.Background(), testUserID, requestRule(false), tripEvent)
	require.Equal(t, StatusFailed, first.Status)
	require.True(t, breaker.IsOpen())

	// The next event fails fast inside the probe window: no provider
	// call and, crucially, no claim burned.
	failFast := d.Dispatch(context.Background(), testUserID, requestRule(false), blocked)
	assert.Equal(t, StatusFailed, failFast.Status)
	assert.Contains(t, failFast.Reason, "circuit breaker open")

	// After recovery the redelivery of the blocked event dispatches
	// instead of reporting a duplicate.
	breaker.Reset()
	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)
	client.EXPECT().CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).Return(nil)

	redelivery := d.Dispatch(context.Background(), testUserID, requestRule(false), blocked)
	assert.Equal(t, StatusDispatched, redelivery.Status)
}

func TestDispatch_BreakerClosesAfterProviderRecovers(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)

	breaker := circuit.New("bank-api", circuit.WithFailureThreshold(2))
	d := New(guard, client,
		WithBreaker(breaker),
		WithRetry(1, time.Millisecond),
		WithProbeInterval(0))

	newEvent := func(id int) *event.Event {
		return event.New(event.CategoryMutation, event.TypeMutationCreated, event.KindPayment, map[string]any{
			"id":                  float64(id),
			"monetary_account_id": float64(7),
			"description":         fmt.Sprintf("expense %d", id),
			"amount":              map[string]any{"value": "-10.00", "currency": "EUR"},
		})
	}
	outage := &bank.APIError{StatusCode: http.StatusBadGateway, Body: "upstream down"}

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil).Times(4)
	client.EXPECT().CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).Return(outage).Times(2)
	client.EXPECT().CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).Return(nil).Times(2)

	require.Equal(t, StatusFailed, d.Dispatch(context.Background(), testUserID, requestRule(false), newEvent(300)).Status)
	require.Equal(t, StatusFailed, d.Dispatch(context.Background(), testUserID, requestRule(false), newEvent(301)).Status)
	require.True(t, breaker.IsOpen())

	// The provider is healthy again: the trial call succeeds, the
	// breaker closes, and fresh events flow normally.
	probe := d.Dispatch(context.Background(), testUserID, requestRule(false), newEvent(302))
	assert.Equal(t, StatusDispatched, probe.Status)
	assert.False(t, breaker.IsOpen())

	after := d.Dispatch(context.Background(), testUserID, requestRule(false), newEvent(303))
	assert.Equal(t, StatusDispatched, after.Status)
}

func TestDispatch_IncomingTransferRestrictedToOwnAccounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	ev := event.New(event.CategoryMutation, event.TypeMutationReceived, event.KindPayment, map[string]any{
		"id":                  float64(200),
		"monetary_account_id": float64(7),
		"description":         "Salary August",
		"amount":              map[string]any{"value": "2500.00", "currency": "EUR"},
	})

	def := rules.Definition{
		Name: "forward salary",
		Action: rules.Action{
			Type:   rules.ActionTransferIncomingPayment,
			Events: []event.Type{event.TypeMutationReceived},
			Data: rules.ActionData{
				OnlyAllowOwnAccounts: true,
				ForwardPaymentTo:     &rules.CounterParty{Name: "External", IBAN: "DE89370400440532013000"},
			},
		},
	}

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)

	outcome := d.Dispatch(context.Background(), testUserID, def, ev)
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Contains(t, outcome.Reason, "not an own account")
}

func TestDispatch_RemainingBalanceSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	// Salary of 2500.00 arrives, balance after is 2735.57. The sweep
	// moves what was there before: floor(235.57 * 100) / 100.
	ev := event.New(event.CategoryMutation, event.TypeMutationReceived, event.KindPayment, map[string]any{
		"id":                  float64(201),
		"monetary_account_id": float64(7),
		"description":         "Salary August",
		"amount":              map[string]any{"value": "2500.00", "currency": "EUR"},
		"balance_after_mutation": map[string]any{
			"value": "2735.57", "currency": "EUR",
		},
	})

	def := rules.Definition{
		Name: "sweep to savings",
		Action: rules.Action{
			Type:   rules.ActionTransferRemainingBalance,
			Events: []event.Type{event.TypeMutationReceived},
			Data: rules.ActionData{
				Description:                "Sweep",
				OnlyAllowOwnAccounts:       true,
				TransferRemainingBalanceTo: &rules.CounterParty{Name: "Savings", IBAN: "NL69INGB0123456789"},
			},
		},
	}

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)
	client.EXPECT().
		TransferPayment(gomock.Any(), testUserID, "7", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, order bank.PaymentOrder) error {
			assert.Equal(t, "235.57", order.Amount.Value)
			assert.Equal(t, "NL69INGB0123456789", order.Counterparty.IBAN)
			assert.Equal(t, "Sweep -> Checking - Salary August", order.Description)
			return nil
		})

	outcome := d.Dispatch(context.Background(), testUserID, def, ev)
	assert.Equal(t, StatusDispatched, outcome.Status)
}

func TestDispatch_NonPositiveAmountSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	// An incoming-payment rule firing on an expense has nothing to
	// forward.
	ev := expensePayment(t)
	def := rules.Definition{
		Name: "forward",
		Action: rules.Action{
			Type:   rules.ActionTransferIncomingPayment,
			Events: []event.Type{event.TypeMutationCreated},
			Data: rules.ActionData{
				ForwardPaymentTo: &rules.CounterParty{Name: "Savings", IBAN: "NL69INGB0123456789"},
			},
		},
	}

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil)

	outcome := d.Dispatch(context.Background(), testUserID, def, ev)
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Contains(t, outcome.Reason, "requires amount > 0")
}

func TestDispatch_DummyActionHasNoSideEffects(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	ev := expensePayment(t)
	def := rules.Definition{
		Name: "observe groceries",
		Action: rules.Action{
			Type:   rules.ActionDummy,
			Events: []event.Type{event.TypeMutationCreated},
		},
	}

	outcome := d.Dispatch(context.Background(), testUserID, def, ev)
	assert.Equal(t, StatusDispatched, outcome.Status)
}

func TestDispatch_SameAccountSerialized(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBankClient(ctrl)
	guard := idempotency.NewMemoryGuard(time.Hour)
	d := New(guard, client)

	const workers = 8
	inFlight := make(chan struct{}, 1)

	client.EXPECT().ListAccounts(gomock.Any(), testUserID).Return(ownAccounts(), nil).Times(workers)
	client.EXPECT().
		CreateMoneyRequest(gomock.Any(), testUserID, "7", gomock.Any()).
		DoAndReturn(func(context.Context, string, string, bank.MoneyRequest) error {
			select {
			case inFlight <- struct{}{}:
			default:
				t.Error("concurrent provider call for the same account")
			}
			time.Sleep(5 * time.Millisecond)
			<-inFlight
			return nil
		}).
		Times(workers)

	done := make(chan Outcome, workers)
	for i := 0; i < workers; i++ {
		// Distinct events on the same account: each claims its own
		// fingerprint but all must serialize on the account lock.
		ev := event.New(event.CategoryMutation, event.TypeMutationCreated, event.KindPayment, map[string]any{
			"id":                  float64(1000 + i),
			"monetary_account_id": float64(7),
			"description":         fmt.Sprintf("expense %d", i),
			"amount":              map[string]any{"value": "-10.00", "currency": "EUR"},
		})
		go func() {
			done <- d.Dispatch(context.Background(), testUserID, requestRule(false), ev)
		}()
	}

	for i := 0; i < workers; i++ {
		outcome := <-done
		assert.Equal(t, StatusDispatched, outcome.Status)
	}
}
