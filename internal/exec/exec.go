// Package exec translates a trading decision into a broker order shape,
// submits it, and optionally polls it to a terminal status under a bounded
// wait budget.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fusion/internal/broker"
)

// ErrInvalidOrderSizing is returned when an order cannot be sized to a
// tradable quantity: notional under one dollar, or a limit order rounding to
// zero shares.
var ErrInvalidOrderSizing = errors.New("invalid order sizing")

// Terminal order statuses. A polled order that never reaches one of these
// within the wait budget is returned as-is: fill unknown, not an error.
var finishedStatuses = map[string]bool{
	"filled":       true,
	"canceled":     true,
	"expired":      true,
	"done_for_day": true,
}

func IsTerminal(status string) bool { return finishedStatuses[status] }

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultMaxWait      = 30 * time.Second

	statusNew = "new"
)

// Broker is the subset of broker capabilities the protocol needs.
type Broker interface {
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error)
	GetOrder(ctx context.Context, orderID string) (broker.Order, error)
	ClosePosition(ctx context.Context, symbol string, percentage float64) (broker.Order, error)
}

// Intent is the order the strategy wants: a direction at a price, with the
// sizing inputs and optional protective legs.
type Intent struct {
	Symbol         string
	Side           string // "buy" or "sell"
	Price          float64
	High           float64 // alert high, limit price for extended-hours orders
	Qty            int     // share quantity from the sizer, used for bracket orders
	BuyingPowerPct float64 // fraction of buying power for notional sizing
	AssetClass     string  // "stock" or "crypto"
	Leveraged      bool
	StopLossPct    float64 // bracket stop fraction, 0 disables
	TakeProfitPct  float64 // bracket take-profit fraction, 0 disables
}

type Options struct {
	ExtendedHours bool
	WaitForFill   bool
}

// Executor drives orders through the broker state machine. Poll cadence and
// wait budget are overridable for tests.
type Executor struct {
	Broker       Broker
	PollInterval time.Duration
	MaxWait      time.Duration
}

func New(b Broker) *Executor {
	return &Executor{
		Broker:       b,
		PollInterval: defaultPollInterval,
		MaxWait:      defaultMaxWait,
	}
}

// Execute builds the order shape for the intent, submits it, and, when
// requested, polls until a terminal status or the wait budget runs out.
func (e *Executor) Execute(ctx context.Context, intent Intent, acct broker.Account, opts Options) (broker.Order, error) {
	req, err := BuildOrder(intent, acct, opts.ExtendedHours)
	if err != nil {
		return broker.Order{}, err
	}

	return e.Submit(ctx, req, opts.WaitForFill)
}

// Submit sends a prepared request and optionally polls it to a terminal
// status. Callers that need to report the submitted shape build the request
// themselves and come in here.
func (e *Executor) Submit(ctx context.Context, req broker.OrderRequest, waitForFill bool) (broker.Order, error) {
	order, err := e.Broker.SubmitOrder(ctx, req)
	if err != nil {
		return broker.Order{}, err
	}
	if !waitForFill {
		return order, nil
	}
	return e.WaitForFill(ctx, order)
}

// BuildOrder selects the broker order shape:
//
//   - extended hours (non-crypto): limit order at the alert high, integer
//     shares from the notional budget;
//   - both protective legs set: bracket market order, GTC;
//   - otherwise: market order sized by notional value.
//
// Crypto always uses GTC and never takes the extended-hours branch.
func BuildOrder(intent Intent, acct broker.Account, extendedHours bool) (broker.OrderRequest, error) {
	buyingPower := acct.BuyingPower
	if intent.Leveraged || intent.AssetClass == "crypto" {
		buyingPower = acct.NonMarginableBP
	}
	notional := round2(buyingPower * intent.BuyingPowerPct)

	tif := "day"
	if intent.AssetClass == "crypto" {
		tif = "gtc"
	}

	if extendedHours && intent.AssetClass != "crypto" {
		// Extended hours allow limit orders only, and limit orders
		// require a whole number of shares.
		qty := int64(math.Floor(notional / intent.Price))
		if qty < 1 {
			return broker.OrderRequest{}, fmt.Errorf("extended hours qty %d for notional %.2f at %.2f: %w",
				qty, notional, intent.Price, ErrInvalidOrderSizing)
		}
		limit := intent.High
		return broker.OrderRequest{
			Symbol:        intent.Symbol,
			Side:          intent.Side,
			Qty:           &qty,
			Type:          "limit",
			TimeInForce:   "day",
			LimitPrice:    &limit,
			ExtendedHours: true,
		}, nil
	}

	if intent.StopLossPct > 0 && intent.TakeProfitPct > 0 {
		qty := int64(intent.Qty)
		if qty < 1 {
			return broker.OrderRequest{}, fmt.Errorf("bracket qty %d: %w", qty, ErrInvalidOrderSizing)
		}
		stop := round2(intent.Price * (1 - intent.StopLossPct))
		take := round2(intent.Price * (1 + intent.TakeProfitPct))
		if intent.Side == "sell" {
			stop = round2(intent.Price * (1 + intent.StopLossPct))
			take = round2(intent.Price * (1 - intent.TakeProfitPct))
		}
		return broker.OrderRequest{
			Symbol:      intent.Symbol,
			Side:        intent.Side,
			Qty:         &qty,
			Type:        "market",
			TimeInForce: "gtc",
			StopPrice:   &stop,
			TakeProfit:  &take,
		}, nil
	}

	if notional < 1 {
		return broker.OrderRequest{}, fmt.Errorf("notional %.2f under $1: %w", notional, ErrInvalidOrderSizing)
	}
	return broker.OrderRequest{
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Notional:    &notional,
		Type:        "market",
		TimeInForce: tif,
	}, nil
}

// WaitForFill polls the order until it reaches a terminal status or the wait
// budget elapses. A timed-out poll returns the last observed order and no
// error; the caller must treat a non-terminal status as fill unknown.
func (e *Executor) WaitForFill(ctx context.Context, order broker.Order) (broker.Order, error) {
	deadline := time.Now().Add(e.MaxWait)
	for !IsTerminal(order.Status) {
		if time.Now().After(deadline) {
			slog.Warn("fill wait budget exhausted", "order_id", order.ID, "status", order.Status)
			return order, nil
		}
		// A freshly accepted order flips out of "new" almost
		// immediately; skip the sleep until it has.
		if order.Status != statusNew {
			select {
			case <-ctx.Done():
				return order, ctx.Err()
			case <-time.After(e.PollInterval):
			}
		}
		refreshed, err := e.Broker.GetOrder(ctx, order.ID)
		if err != nil {
			return order, fmt.Errorf("poll order %s: %w", order.ID, err)
		}
		order = refreshed
	}
	return order, nil
}

// Close requests a full close of the symbol's position, optionally waiting
// for the exit order to finish. A broker failure is returned as an explicit
// error: the caller must treat it as outcome unknown, not as no position.
func (e *Executor) Close(ctx context.Context, symbol string, waitForFill bool) (broker.Order, error) {
	order, err := e.Broker.ClosePosition(ctx, symbol, 100.0)
	if err != nil {
		return broker.Order{}, err
	}
	if !waitForFill {
		return order, nil
	}
	return e.WaitForFill(ctx, order)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
