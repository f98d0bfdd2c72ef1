package wyvernsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// HeartbeatInterval is how often the stream pings the server
	HeartbeatInterval = 30 * time.Second

	// Reconnect settings
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// Channel protocol events
const (
	eventJoin        = "phx_join"
	eventLeave       = "phx_leave"
	eventReply       = "phx_reply"
	eventHeartbeat   = "heartbeat"
	topicPhoenix     = "phoenix"
	collectionPrefix = "collection:"
)

// EventType names an order event delivered by the stream
type EventType string

const (
	EventItemListed        EventType = "item_listed"
	EventItemReceivedOffer EventType = "item_received_offer"
	EventItemCancelled     EventType = "item_cancelled"
	EventItemSold          EventType = "item_sold"
)

// AllCollections subscribes to events from every collection
const AllCollections = "*"

type channelMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type eventEnvelope struct {
	EventType EventType       `json:"event_type"`
	SentAt    string          `json:"sent_at"`
	Payload   json.RawMessage `json:"payload"`
}

// StreamAccount is an account reference in stream events
type StreamAccount struct {
	Address string `json:"address"`
}

// StreamPaymentToken is the payment token an event's price is quoted in
type StreamPaymentToken struct {
	Address  string          `json:"address"`
	Symbol   string          `json:"symbol"`
	Decimals int             `json:"decimals"`
	EthPrice decimal.Decimal `json:"eth_price"`
	UsdPrice decimal.Decimal `json:"usd_price"`
}

// StreamItem is the asset an event refers to
type StreamItem struct {
	NftID     string `json:"nft_id"`
	Permalink string `json:"permalink"`
	Chain     struct {
		Name string `json:"name"`
	} `json:"chain"`
	Metadata struct {
		Name     string `json:"name"`
		ImageURL string `json:"image_url"`
	} `json:"metadata"`
}

// EventBase holds the fields every order event carries
type EventBase struct {
	EventTimestamp string `json:"event_timestamp"`
	Collection     struct {
		Slug string `json:"slug"`
	} `json:"collection"`
	Item      StreamItem         `json:"item"`
	OrderHash string             `json:"order_hash"`
	Maker     StreamAccount      `json:"maker"`
	Quantity  int                `json:"quantity"`
	Token     StreamPaymentToken `json:"payment_token"`
}

// ItemListedEvent is sent when an asset is listed for sale
type ItemListedEvent struct {
	EventBase
	BasePrice      decimal.Decimal `json:"base_price"`
	ListingType    string          `json:"listing_type"`
	ListingDate    string          `json:"listing_date"`
	ExpirationDate string          `json:"expiration_date"`
	IsPrivate      bool            `json:"is_private"`
	Taker          *StreamAccount  `json:"taker"`
}

// ItemReceivedOfferEvent is sent when an offer is made on an asset
type ItemReceivedOfferEvent struct {
	EventBase
	BasePrice      decimal.Decimal `json:"base_price"`
	CreatedDate    string          `json:"created_date"`
	ExpirationDate string          `json:"expiration_date"`
	Taker          *StreamAccount  `json:"taker"`
}

// ItemCancelledEvent is sent when a listing or offer is cancelled
type ItemCancelledEvent struct {
	EventBase
	BasePrice   decimal.Decimal `json:"base_price"`
	ListingType string          `json:"listing_type"`
	Transaction *struct {
		Hash      string `json:"hash"`
		Timestamp string `json:"timestamp"`
	} `json:"transaction"`
}

// ItemSoldEvent is sent when an order is filled
type ItemSoldEvent struct {
	EventBase
	SalePrice   decimal.Decimal `json:"sale_price"`
	ClosingDate string          `json:"closing_date"`
	ListingType string          `json:"listing_type"`
	IsPrivate   bool            `json:"is_private"`
	Taker       StreamAccount   `json:"taker"`
	Transaction struct {
		Hash      string `json:"hash"`
		Timestamp string `json:"timestamp"`
	} `json:"transaction"`
}

type rawHandler func(payload json.RawMessage) error

// StreamErrorHandler is a callback for stream errors
type StreamErrorHandler func(err error)

// StreamConfig holds configuration for the event stream
type StreamConfig struct {
	Endpoint             string
	APIKey               string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	OnError              StreamErrorHandler
	OnConnect            func()
	OnDisconnect         func()
}

// StreamClient receives collection order events over a websocket
type StreamClient struct {
	config StreamConfig
	log    *logrus.Entry

	mu          sync.RWMutex
	conn        *websocket.Conn
	isConnected bool
	ctx         context.Context
	cancel      context.CancelFunc
	connCancel  context.CancelFunc

	writeMu sync.Mutex
	ref     atomic.Uint64

	subMu    sync.RWMutex
	handlers map[string]map[EventType][]rawHandler

	reconnectAttempt int
}

// NewStreamClient creates an event stream client
func NewStreamClient(config StreamConfig, logger *logrus.Logger) *StreamClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultStreamURL
	}
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = HeartbeatInterval
	}
	return &StreamClient{
		config:   config,
		log:      componentLogger(logger, "stream"),
		handlers: make(map[string]map[EventType][]rawHandler),
	}
}

// Connect opens the stream and joins every subscribed collection
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.isConnected {
		s.mu.Unlock()
		return nil
	}
	if s.ctx == nil || s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(ctx)
	}

	u, err := url.Parse(s.config.Endpoint)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to parse stream endpoint: %w", err)
	}
	q := u.Query()
	if s.config.APIKey != "" {
		q.Set("token", s.config.APIKey)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, u.String(), nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to connect to stream: %w", err)
	}

	connCtx, connCancel := context.WithCancel(s.ctx)
	s.conn = conn
	s.connCancel = connCancel
	s.isConnected = true
	s.reconnectAttempt = 0
	s.mu.Unlock()

	s.startHeartbeat(connCtx)
	go s.readLoop(conn)

	s.resubscribe()
	s.log.WithField("endpoint", s.config.Endpoint).Info("stream connected")
	if s.config.OnConnect != nil {
		go s.config.OnConnect()
	}
	return nil
}

// Disconnect closes the stream and stops reconnecting
func (s *StreamClient) Disconnect() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	wasConnected := s.isConnected
	err := s.closeConn()
	s.mu.Unlock()

	if wasConnected && s.config.OnDisconnect != nil {
		go s.config.OnDisconnect()
	}
	return err
}

// closeConn tears down the current connection (must be called with lock held)
func (s *StreamClient) closeConn() error {
	s.isConnected = false
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	if s.conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected returns the current connection status
func (s *StreamClient) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// OnItemListed calls fn for every listing in collection
func (s *StreamClient) OnItemListed(collection string, fn func(*ItemListedEvent)) error {
	return s.subscribe(collection, EventItemListed, func(raw json.RawMessage) error {
		var event ItemListedEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		fn(&event)
		return nil
	})
}

// OnItemReceivedOffer calls fn for every offer made in collection
func (s *StreamClient) OnItemReceivedOffer(collection string, fn func(*ItemReceivedOfferEvent)) error {
	return s.subscribe(collection, EventItemReceivedOffer, func(raw json.RawMessage) error {
		var event ItemReceivedOfferEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		fn(&event)
		return nil
	})
}

// OnItemCancelled calls fn for every cancellation in collection
func (s *StreamClient) OnItemCancelled(collection string, fn func(*ItemCancelledEvent)) error {
	return s.subscribe(collection, EventItemCancelled, func(raw json.RawMessage) error {
		var event ItemCancelledEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		fn(&event)
		return nil
	})
}

// OnItemSold calls fn for every sale in collection
func (s *StreamClient) OnItemSold(collection string, fn func(*ItemSoldEvent)) error {
	return s.subscribe(collection, EventItemSold, func(raw json.RawMessage) error {
		var event ItemSoldEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		fn(&event)
		return nil
	})
}

// subscribe registers a handler and joins the collection's topic if this is
// its first handler and the stream is up
func (s *StreamClient) subscribe(collection string, event EventType, handler rawHandler) error {
	if collection == "" {
		return &InvalidParamError{Message: "collection slug is required"}
	}
	topic := collectionPrefix + collection

	s.subMu.Lock()
	events, joined := s.handlers[topic]
	if !joined {
		events = make(map[EventType][]rawHandler)
		s.handlers[topic] = events
	}
	events[event] = append(events[event], handler)
	s.subMu.Unlock()

	if joined || !s.IsConnected() {
		return nil
	}
	return s.sendMessage(topic, eventJoin)
}

// Unsubscribe drops every handler for collection and leaves its topic
func (s *StreamClient) Unsubscribe(collection string) error {
	topic := collectionPrefix + collection

	s.subMu.Lock()
	_, joined := s.handlers[topic]
	delete(s.handlers, topic)
	s.subMu.Unlock()

	if !joined || !s.IsConnected() {
		return nil
	}
	return s.sendMessage(topic, eventLeave)
}

// sendMessage sends a channel message with a fresh ref
func (s *StreamClient) sendMessage(topic, event string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isConnected || s.conn == nil {
		return fmt.Errorf("stream not connected")
	}

	ref := strconv.FormatUint(s.ref.Add(1), 10)
	data, err := json.Marshal(channelMessage{
		Topic:   topic,
		Event:   event,
		Payload: json.RawMessage(`{}`),
		Ref:     &ref,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// startHeartbeat pings the server until ctx ends
func (s *StreamClient) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.sendMessage(topicPhoenix, eventHeartbeat); err != nil {
					s.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// readLoop reads messages until conn fails
func (s *StreamClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.RLock()
			stopped := s.ctx.Err() != nil
			s.mu.RUnlock()
			if stopped {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.reportError(fmt.Errorf("read error: %w", err))
			}
			s.handleDisconnect(conn)
			return
		}
		s.dispatch(data)
	}
}

// dispatch routes an event to the handlers of its topic
func (s *StreamClient) dispatch(data []byte) {
	var msg channelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reportError(fmt.Errorf("failed to decode message: %w", err))
		return
	}
	if msg.Event == eventReply || msg.Topic == topicPhoenix {
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		s.reportError(fmt.Errorf("failed to decode %s event: %w", msg.Event, err))
		return
	}
	event := EventType(msg.Event)
	if envelope.EventType != "" {
		event = envelope.EventType
	}

	s.subMu.RLock()
	handlers := append([]rawHandler(nil), s.handlers[msg.Topic][event]...)
	if msg.Topic != collectionPrefix+AllCollections {
		handlers = append(handlers, s.handlers[collectionPrefix+AllCollections][event]...)
	}
	s.subMu.RUnlock()

	for _, handle := range handlers {
		if err := handle(envelope.Payload); err != nil {
			s.reportError(fmt.Errorf("failed to decode %s event: %w", event, err))
		}
	}
}

// handleDisconnect drops a failed connection and starts reconnecting
func (s *StreamClient) handleDisconnect(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	wasConnected := s.isConnected
	_ = s.closeConn()
	s.mu.Unlock()

	s.log.Warn("stream disconnected")
	if wasConnected && s.config.OnDisconnect != nil {
		s.config.OnDisconnect()
	}
	go s.attemptReconnect()
}

// attemptReconnect retries the connection until it succeeds, the client is
// disconnected or attempts run out
func (s *StreamClient) attemptReconnect() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	for s.reconnectAttempt < s.config.MaxReconnectAttempts {
		s.reconnectAttempt++

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.ReconnectInterval):
		}

		if err := s.Connect(ctx); err != nil {
			s.reportError(fmt.Errorf("reconnect attempt %d failed: %w", s.reconnectAttempt, err))
			continue
		}
		return
	}

	s.reportError(fmt.Errorf("max reconnect attempts (%d) reached", s.config.MaxReconnectAttempts))
}

// resubscribe joins every topic that has handlers
func (s *StreamClient) resubscribe() {
	for _, topic := range s.topics() {
		if err := s.sendMessage(topic, eventJoin); err != nil {
			s.reportError(fmt.Errorf("resubscribe failed: %w", err))
		}
	}
}

func (s *StreamClient) topics() []string {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	topics := make([]string, 0, len(s.handlers))
	for topic := range s.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// GetSubscriptions returns the collections with registered handlers
func (s *StreamClient) GetSubscriptions() []string {
	topics := s.topics()
	for i, topic := range topics {
		topics[i] = strings.TrimPrefix(topic, collectionPrefix)
	}
	return topics
}

func (s *StreamClient) reportError(err error) {
	s.log.WithError(err).Debug("stream error")
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}
