// Package feed streams live market data over the exchange websocket and
// fans it out to registered handlers and the market-data cache.
package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/cache"
	"github.com/statforge/pairtrader/internal/config"
	"github.com/statforge/pairtrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CandleHandler receives completed candles from the stream
type CandleHandler func(*models.Candle)

// FundingHandler receives funding rate updates from the stream
type FundingHandler func(*models.FundingRate)

// Stream manages the websocket connection for real-time data. Market
// streams are public, so there is no auth step; staged subscriptions are
// replayed after every (re)connect.
type Stream struct {
	cfg                   *config.Config
	cache                 *cache.Cache
	logger                *zap.Logger
	conn                  *websocket.Conn
	mu                    sync.RWMutex
	subscriptions         map[string]bool
	candleHandler         CandleHandler
	fundingHandler        FundingHandler
	reconnectDelay        time.Duration
	ctx                   context.Context
	cancel                context.CancelFunc
	isConnected           bool
	connectionAttempts    int
	maxConnectionAttempts int
	nextID                int
}

// Combined-stream envelope and concrete message types
type combinedEnvelope struct {
	Stream string              `json:"stream"`
	Data   jsoniter.RawMessage `json:"data"`
}

type eventEnvelope struct {
	EventType string `json:"e"`
}

type klineMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64           `json:"t"`
		CloseTime int64           `json:"T"`
		Interval  string          `json:"i"`
		Open      decimal.Decimal `json:"o"`
		High      decimal.Decimal `json:"h"`
		Low       decimal.Decimal `json:"l"`
		Close     decimal.Decimal `json:"c"`
		Volume    decimal.Decimal `json:"v"`
		Closed    bool            `json:"x"`
	} `json:"k"`
}

type markPriceMessage struct {
	EventType       string          `json:"e"`
	EventTime       int64           `json:"E"`
	Symbol          string          `json:"s"`
	MarkPrice       decimal.Decimal `json:"p"`
	FundingRate     decimal.Decimal `json:"r"`
	NextFundingTime int64           `json:"T"`
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// NewStream creates a new streaming client
func NewStream(cfg *config.Config, cache *cache.Cache, logger *zap.Logger) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		cfg:                   cfg,
		cache:                 cache,
		logger:                logger.With(zap.String("component", "feed")),
		subscriptions:         make(map[string]bool),
		reconnectDelay:        cfg.WebsocketReconnectDelay,
		ctx:                   ctx,
		cancel:                cancel,
		maxConnectionAttempts: 5,
	}
}

// OnCandle registers the handler for completed candles
func (s *Stream) OnCandle(handler CandleHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candleHandler = handler
}

// OnFundingRate registers the handler for funding rate updates
func (s *Stream) OnFundingRate(handler FundingHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundingHandler = handler
}

// Connect establishes the websocket connection
func (s *Stream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Close existing connection if any
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.isConnected = false
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(s.cfg.ExchangeWSURL, nil)
	if err != nil {
		s.connectionAttempts++
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	s.isConnected = true
	s.connectionAttempts = 0

	// Replay staged subscriptions
	if len(s.subscriptions) > 0 {
		streams := make([]string, 0, len(s.subscriptions))
		for stream := range s.subscriptions {
			streams = append(streams, stream)
		}
		if err := s.sendSubscribe(streams); err != nil {
			s.conn.Close()
			s.conn = nil
			s.isConnected = false
			return fmt.Errorf("subscribe after connect: %w", err)
		}
	}

	// Start message handler
	go s.handleMessages()

	s.logger.Info("websocket connected", zap.String("url", s.cfg.ExchangeWSURL))
	return nil
}

// klineStream builds the candle stream name for a symbol
func (s *Stream) klineStream(symbol string) string {
	return strings.ToLower(symbol) + "@kline_" + s.cfg.Timeframe
}

// markPriceStream builds the funding stream name for a symbol
func markPriceStream(symbol string) string {
	return strings.ToLower(symbol) + "@markPrice"
}

// SubscribeCandles subscribes to candle streams for the given symbols
func (s *Stream) SubscribeCandles(symbols []string) error {
	streams := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		streams = append(streams, s.klineStream(symbol))
	}
	return s.subscribe(streams)
}

// SubscribeFunding subscribes to mark-price streams for the given symbols
func (s *Stream) SubscribeFunding(symbols []string) error {
	streams := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		streams = append(streams, markPriceStream(symbol))
	}
	return s.subscribe(streams)
}

func (s *Stream) subscribe(streams []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stream := range streams {
		s.subscriptions[stream] = true
	}

	if s.isConnected {
		s.logger.Info("sending subscription", zap.Strings("streams", streams))
		return s.sendSubscribe(streams)
	}

	// Not connected yet; stage the subscriptions
	s.logger.Info("staged subscriptions (will subscribe after connect)", zap.Strings("streams", streams))
	return nil
}

// sendSubscribe sends the subscription message; callers hold the lock
func (s *Stream) sendSubscribe(streams []string) error {
	s.nextID++
	return s.conn.WriteJSON(subscribeMessage{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     s.nextID,
	})
}

// Unsubscribe removes streams for the given symbols
func (s *Stream) Unsubscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	streams := make([]string, 0, 2*len(symbols))
	for _, symbol := range symbols {
		for _, stream := range []string{s.klineStream(symbol), markPriceStream(symbol)} {
			if s.subscriptions[stream] {
				delete(s.subscriptions, stream)
				streams = append(streams, stream)
			}
		}
	}
	if len(streams) == 0 {
		return nil
	}

	if s.isConnected {
		s.nextID++
		return s.conn.WriteJSON(subscribeMessage{
			Method: "UNSUBSCRIBE",
			Params: streams,
			ID:     s.nextID,
		})
	}
	return nil
}

// handleMessages processes incoming websocket messages
func (s *Stream) handleMessages() {
	defer func() {
		s.mu.Lock()
		s.isConnected = false
		s.mu.Unlock()

		// Only attempt reconnect if we haven't exceeded max attempts
		if s.connectionAttempts < s.maxConnectionAttempts {
			s.reconnect()
		} else {
			s.logger.Error("max connection attempts reached, stopping reconnection")
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			// Set read deadline
			s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			_, raw, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Error("websocket read error", zap.Error(err))
				}
				return
			}

			s.processMessage(raw)
		}
	}
}

// processMessage handles one stream message
func (s *Stream) processMessage(raw []byte) {
	var env combinedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Error("failed to parse stream envelope", zap.Error(err))
		return
	}
	// Subscription acks have no data payload
	if len(env.Data) == 0 {
		return
	}

	var event eventEnvelope
	if err := json.Unmarshal(env.Data, &event); err != nil {
		s.logger.Error("failed to parse event envelope", zap.Error(err))
		return
	}

	switch event.EventType {
	case "kline":
		var km klineMessage
		if err := json.Unmarshal(env.Data, &km); err != nil {
			s.logger.Error("failed to parse kline message", zap.Error(err))
			return
		}
		candle := &models.Candle{
			Symbol:    km.Symbol,
			Open:      km.Kline.Open,
			High:      km.Kline.High,
			Low:       km.Kline.Low,
			Close:     km.Kline.Close,
			Volume:    km.Kline.Volume,
			Timestamp: time.UnixMilli(km.Kline.StartTime),
		}
		s.cache.UpdateCandleFromStream(candle)

		// In-progress candles only refresh the cache; handlers see a
		// symbol's candle exactly once, when it closes.
		if !km.Kline.Closed {
			return
		}
		s.mu.RLock()
		handler := s.candleHandler
		s.mu.RUnlock()
		if handler != nil {
			handler(candle)
		}

	case "markPriceUpdate":
		var mm markPriceMessage
		if err := json.Unmarshal(env.Data, &mm); err != nil {
			s.logger.Error("failed to parse mark price message", zap.Error(err))
			return
		}
		rate := &models.FundingRate{
			Symbol:          mm.Symbol,
			Rate:            mm.FundingRate,
			MarkPrice:       mm.MarkPrice,
			NextFundingTime: time.UnixMilli(mm.NextFundingTime),
			Timestamp:       time.UnixMilli(mm.EventTime),
		}
		s.cache.SetFundingRate(mm.Symbol, rate)

		s.mu.RLock()
		handler := s.fundingHandler
		s.mu.RUnlock()
		if handler != nil {
			handler(rate)
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
func (s *Stream) reconnect() {
	backoff := s.reconnectDelay
	maxBackoff := 60 * time.Second

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(backoff):
			if s.connectionAttempts >= s.maxConnectionAttempts {
				s.logger.Error("max connection attempts reached, stopping reconnection",
					zap.Int("attempts", s.connectionAttempts))
				return
			}

			s.logger.Info("attempting to reconnect",
				zap.Duration("backoff", backoff),
				zap.Int("attempt", s.connectionAttempts+1))

			if err := s.Connect(); err != nil {
				s.logger.Error("reconnect failed", zap.Error(err))
				// Exponential backoff
				backoff = backoff * 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			} else {
				s.logger.Info("reconnected successfully")
				return
			}
		}
	}
}

// Close gracefully shuts down the stream
func (s *Stream) Close() error {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		// Send close message
		err := s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			s.logger.Error("error sending close message", zap.Error(err))
		}

		// Close connection
		closeErr := s.conn.Close()
		s.conn = nil
		s.isConnected = false
		return closeErr
	}

	return nil
}

// IsConnected returns connection status
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}
