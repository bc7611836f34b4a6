// Package broker wraps the Alpaca trading API behind the narrow contract the
// strategy core needs: account, position, clock, quote, and the order
// submit/poll/close calls.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// OrderRequest is the broker-shape-agnostic order the execution protocol
// builds. Exactly one of Qty or Notional is set.
type OrderRequest struct {
	Symbol        string
	Side          string // "buy" or "sell"
	Qty           *int64
	Notional      *float64
	Type          string // "market" or "limit"
	TimeInForce   string // "day" or "gtc"
	LimitPrice    *float64
	StopPrice     *float64 // bracket stop-loss leg
	TakeProfit    *float64 // bracket take-profit leg
	ExtendedHours bool
	ClientOrderID string
}

// Bracket reports whether the request carries both protective legs.
func (r OrderRequest) Bracket() bool {
	return r.StopPrice != nil && r.TakeProfit != nil
}

type Order struct {
	ID            string
	ClientOrderID string
	Status        string
	FilledQty     float64
}

type Position struct {
	Symbol string
	Qty    float64
	Side   string // "long" or "short"
}

type Account struct {
	Equity          float64
	BuyingPower     float64
	NonMarginableBP float64
	DayTradeCount   int64
}

type Clock struct {
	IsOpen    bool
	Timestamp time.Time
}

// ExtendedHours reports whether the market is closed but the pre/post
// session is active (4:00 through 20:00 exchange-local time).
func (c Clock) ExtendedHours() bool {
	if c.IsOpen {
		return false
	}
	h := c.Timestamp.Hour()
	return h >= 4 && h < 20
}

type Quote struct {
	Bid float64
	Ask float64
}

type Client struct {
	trading *alpaca.Client
	data    *marketdata.Client
}

func New(apiKey, apiSecret, baseURL string) *Client {
	return &Client{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.OrderType(req.Type),
		TimeInForce:   alpaca.TimeInForce(req.TimeInForce),
		ExtendedHours: req.ExtendedHours,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Qty != nil {
		qty := decimal.NewFromInt(*req.Qty)
		placeReq.Qty = &qty
	}
	if req.Notional != nil {
		notional := decimal.NewFromFloat(*req.Notional)
		placeReq.Notional = &notional
	}
	if req.LimitPrice != nil {
		limit := decimal.NewFromFloat(*req.LimitPrice)
		placeReq.LimitPrice = &limit
	}
	if req.Bracket() {
		stop := decimal.NewFromFloat(*req.StopPrice)
		take := decimal.NewFromFloat(*req.TakeProfit)
		placeReq.OrderClass = alpaca.Bracket
		placeReq.StopLoss = &alpaca.StopLoss{StopPrice: &stop}
		placeReq.TakeProfit = &alpaca.TakeProfit{LimitPrice: &take}
	}

	order, err := c.trading.PlaceOrder(placeReq)
	if err != nil {
		slog.Error("place order failed", "symbol", req.Symbol, "side", req.Side, "type", req.Type, "error", err)
		return Order{}, fmt.Errorf("place order %s: %w", req.Symbol, err)
	}

	slog.Info("place order success", "order_id", order.ID, "symbol", req.Symbol, "side", req.Side, "type", req.Type, "status", order.Status)
	return toOrder(order), nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := c.trading.GetOrder(orderID)
	if err != nil {
		slog.Error("fetch order failed", "order_id", orderID, "error", err)
		return Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return toOrder(order), nil
}

// ClosePosition requests a percentage close of an open position and returns
// the resulting exit order.
func (c *Client) ClosePosition(ctx context.Context, symbol string, percentage float64) (Order, error) {
	pct := decimal.NewFromFloat(percentage)
	order, err := c.trading.ClosePosition(symbol, alpaca.ClosePositionRequest{
		Percentage: pct,
	})
	if err != nil {
		slog.Error("close position failed", "symbol", symbol, "error", err)
		return Order{}, fmt.Errorf("close position %s: %w", symbol, err)
	}
	slog.Info("close position submitted", "symbol", symbol, "order_id", order.ID, "status", order.Status)
	return toOrder(order), nil
}

// OpenPosition returns the open position for a symbol, (nil, nil) when the
// broker legitimately reports no position, and an error when the lookup
// itself failed. Callers must not treat a failed lookup as flat.
func (c *Client) OpenPosition(ctx context.Context, symbol string) (*Position, error) {
	pos, err := c.trading.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return nil, nil
		}
		slog.Error("fetch position failed", "symbol", symbol, "error", err)
		return nil, fmt.Errorf("get position %s: %w", symbol, err)
	}
	qty, _ := pos.Qty.Float64()
	return &Position{
		Symbol: pos.Symbol,
		Qty:    qty,
		Side:   string(pos.Side),
	}, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	acct, err := c.trading.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	equity, _ := acct.Equity.Float64()
	bp, _ := acct.BuyingPower.Float64()
	nonMarginable, _ := acct.NonMarginBuyingPower.Float64()

	return Account{
		Equity:          equity,
		BuyingPower:     bp,
		NonMarginableBP: nonMarginable,
		DayTradeCount:   acct.DaytradeCount,
	}, nil
}

func (c *Client) Clock(ctx context.Context) (Clock, error) {
	clock, err := c.trading.GetClock()
	if err != nil {
		slog.Error("fetch clock failed", "error", err)
		return Clock{}, fmt.Errorf("get clock: %w", err)
	}
	return Clock{IsOpen: clock.IsOpen, Timestamp: clock.Timestamp}, nil
}

// LatestQuote fetches the current bid/ask, used only for slippage checks.
func (c *Client) LatestQuote(ctx context.Context, symbol, assetClass string) (Quote, error) {
	if assetClass == "crypto" {
		quote, err := c.data.GetLatestCryptoQuote(symbol, marketdata.GetLatestCryptoQuoteRequest{})
		if err != nil {
			return Quote{}, fmt.Errorf("get crypto quote %s: %w", symbol, err)
		}
		return Quote{Bid: quote.BidPrice, Ask: quote.AskPrice}, nil
	}
	quote, err := c.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return Quote{}, fmt.Errorf("get quote %s: %w", symbol, err)
	}
	return Quote{Bid: quote.BidPrice, Ask: quote.AskPrice}, nil
}

func toOrder(order *alpaca.Order) Order {
	filled, _ := order.FilledQty.Float64()
	return Order{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
		FilledQty:     filled,
	}
}
