// Package exchange is a REST client for a Binance-style derivatives venue,
// covering the account, order, and market-data endpoints the strategy needs.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/statforge/pairtrader/internal/config"
	"github.com/statforge/pairtrader/internal/models"
)

const recvWindowMS = 5000

// Client is a thin wrapper around the exchange REST API. All calls go
// through a shared rate limiter and a circuit breaker that opens after
// repeated transport or server failures.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
}

// NewClient creates a new exchange client
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	log := logger.With(zap.String("component", "exchange"))
	settings := gobreaker.Settings{
		Name:        "exchange-rest",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RESTRateLimit), cfg.RESTRateBurst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		baseURL: cfg.ExchangeRESTURL,
	}
}

// sign computes the HMAC-SHA256 signature over the encoded query string.
func (c *Client) sign(params url.Values) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.ExchangeAPISecret))
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest performs a rate-limited HTTP request through the circuit
// breaker. Signed requests get a timestamp, recvWindow, and signature
// appended to the query string; the venue reads parameters from the query
// for POST and DELETE as well.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(recvWindowMS))
		params.Set("signature", c.sign(params))
	}

	reqURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.ExchangeAPIKey)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		// Server-side failures trip the breaker; client errors pass
		// through to the caller.
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// parseResponse reads and unmarshals the response
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

type accountResponse struct {
	TotalWalletBalance decimal.Decimal `json:"totalWalletBalance"`
	TotalMarginBalance decimal.Decimal `json:"totalMarginBalance"`
	AvailableBalance   decimal.Decimal `json:"availableBalance"`
	UpdateTime         int64           `json:"updateTime"`
}

// GetAccount retrieves account balances
func (c *Client) GetAccount(ctx context.Context) (*models.Account, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/account", nil, true)
	if err != nil {
		return nil, err
	}

	var acct accountResponse
	if err := parseResponse(resp, &acct); err != nil {
		return nil, err
	}

	return &models.Account{
		Currency:    "USDT",
		Equity:      acct.TotalMarginBalance,
		Cash:        acct.TotalWalletBalance,
		BuyingPower: acct.AvailableBalance,
		UpdatedAt:   time.UnixMilli(acct.UpdateTime),
	}, nil
}

type orderResponse struct {
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	Status        string          `json:"status"`
	UpdateTime    int64           `json:"updateTime"`
}

func (o *orderResponse) toModel() *models.Order {
	order := &models.Order{
		ID:            strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          models.OrderSide(strings.ToLower(o.Side)),
		Type:          models.OrderType(strings.ToLower(o.Type)),
		Qty:           o.OrigQty,
		FilledQty:     o.ExecutedQty,
		Status:        mapOrderStatus(o.Status),
		UpdatedAt:     time.UnixMilli(o.UpdateTime),
	}
	if !o.AvgPrice.IsZero() {
		price := o.AvgPrice
		order.FilledAvgPrice = &price
	}
	return order
}

func mapOrderStatus(s string) models.OrderStatus {
	switch s {
	case "NEW":
		return models.OrderNew
	case "PARTIALLY_FILLED":
		return models.OrderPartiallyFilled
	case "FILLED":
		return models.OrderFilled
	case "CANCELED":
		return models.OrderCanceled
	default:
		return models.OrderRejected
	}
}

// PlaceOrder submits a new order
func (c *Client) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.Order, error) {
	if req.Qty == nil {
		return nil, fmt.Errorf("order for %s has no quantity", req.Symbol)
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", strings.ToUpper(string(req.Type)))
	params.Set("quantity", req.Qty.String())
	if req.Type == models.Limit {
		if req.LimitPrice == nil {
			return nil, fmt.Errorf("limit order for %s has no price", req.Symbol)
		}
		params.Set("price", req.LimitPrice.String())
		params.Set("timeInForce", "GTC")
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var order orderResponse
	if err := parseResponse(resp, &order); err != nil {
		return nil, err
	}
	return order.toModel(), nil
}

// CancelOrder cancels an existing order
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	resp, err := c.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel order failed %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

type positionResponse struct {
	Symbol           string          `json:"symbol"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	UnRealizedProfit decimal.Decimal `json:"unRealizedProfit"`
	Notional         decimal.Decimal `json:"notional"`
}

func (p *positionResponse) toModel() *models.ExchangePosition {
	side := "long"
	if p.PositionAmt.IsNegative() {
		side = "short"
	}
	return &models.ExchangePosition{
		Symbol:        p.Symbol,
		Qty:           p.PositionAmt,
		Side:          side,
		AvgEntryPrice: p.EntryPrice,
		MarketValue:   p.Notional,
		UnrealizedPnL: p.UnRealizedProfit,
	}
}

// GetPositions retrieves all open positions
func (c *Client) GetPositions(ctx context.Context) ([]*models.ExchangePosition, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true)
	if err != nil {
		return nil, err
	}

	var raw []positionResponse
	if err := parseResponse(resp, &raw); err != nil {
		return nil, err
	}

	positions := make([]*models.ExchangePosition, 0, len(raw))
	for i := range raw {
		if raw[i].PositionAmt.IsZero() {
			continue
		}
		positions = append(positions, raw[i].toModel())
	}
	return positions, nil
}

// GetPosition retrieves the open position for one symbol, or nil if flat
func (c *Client) GetPosition(ctx context.Context, symbol string) (*models.ExchangePosition, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}

	var raw []positionResponse
	if err := parseResponse(resp, &raw); err != nil {
		return nil, err
	}
	for i := range raw {
		if raw[i].Symbol == symbol && !raw[i].PositionAmt.IsZero() {
			return raw[i].toModel(), nil
		}
	}
	return nil, nil
}

// ClosePosition flattens the position for a symbol with a reduce-only
// market order. Closing a flat symbol is a no-op.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (*models.Order, error) {
	pos, err := c.GetPosition(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("lookup position for %s: %w", symbol, err)
	}
	if pos == nil {
		return nil, nil
	}

	side := "SELL"
	if pos.Qty.IsNegative() {
		side = "BUY"
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", pos.Qty.Abs().String())
	params.Set("reduceOnly", "true")

	resp, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var order orderResponse
	if err := parseResponse(resp, &order); err != nil {
		return nil, err
	}
	return order.toModel(), nil
}

// GetKlines retrieves historical candles, oldest first
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, err
	}

	// Each kline is a positional array: open time, O, H, L, C, volume, ...
	var rows [][]json.RawMessage
	if err := parseResponse(resp, &rows); err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candle, err := parseKline(symbol, row)
		if err != nil {
			return nil, fmt.Errorf("parse kline for %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(symbol string, row []json.RawMessage) (*models.Candle, error) {
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return nil, err
	}

	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		if err := json.Unmarshal(row[i+1], &fields[i]); err != nil {
			return nil, err
		}
	}

	return &models.Candle{
		Symbol:    symbol,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
		Timestamp: time.UnixMilli(openTime),
	}, nil
}

type premiumIndexResponse struct {
	Symbol          string          `json:"symbol"`
	MarkPrice       decimal.Decimal `json:"markPrice"`
	LastFundingRate decimal.Decimal `json:"lastFundingRate"`
	NextFundingTime int64           `json:"nextFundingTime"`
	Time            int64           `json:"time"`
}

// GetFundingRate retrieves the current funding rate and mark price
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, false)
	if err != nil {
		return nil, err
	}

	var idx premiumIndexResponse
	if err := parseResponse(resp, &idx); err != nil {
		return nil, err
	}

	return &models.FundingRate{
		Symbol:          idx.Symbol,
		Rate:            idx.LastFundingRate,
		MarkPrice:       idx.MarkPrice,
		NextFundingTime: time.UnixMilli(idx.NextFundingTime),
		Timestamp:       time.UnixMilli(idx.Time),
	}, nil
}

type tickerResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   int64           `json:"time"`
}

// GetTicker retrieves the latest traded price
func (c *Client) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return nil, err
	}

	var tick tickerResponse
	if err := parseResponse(resp, &tick); err != nil {
		return nil, err
	}

	return &models.Ticker{
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Timestamp: time.UnixMilli(tick.Time),
	}, nil
}
