package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// StreamReconnectInterval is the wait between reconnect attempts
	StreamReconnectInterval = 5 * time.Second
	// StreamPingInterval is the keepalive ping cadence
	StreamPingInterval = 30 * time.Second
	// StreamReadTimeout bounds a single read
	StreamReadTimeout = 60 * time.Second
	// StreamWriteTimeout bounds a single write
	StreamWriteTimeout = 10 * time.Second
)

// TradeUpdate is one order lifecycle event from the trade-updates stream
type TradeUpdate struct {
	Event string `json:"event"`
	Order struct {
		ID             string `json:"id"`
		Symbol         string `json:"symbol"`
		Side           string `json:"side"`
		Type           string `json:"type"`
		FilledQty      string `json:"filled_qty"`
		FilledAvgPrice string `json:"filled_avg_price"`
		Status         string `json:"status"`
	} `json:"order"`
}

// TradeUpdateHandler consumes trade update events
type TradeUpdateHandler func(TradeUpdate)

// Stream is the trade-updates websocket client. It authenticates, listens
// to the trade_updates channel and dispatches events to a handler,
// reconnecting on any transport failure until the context is cancelled.
type Stream struct {
	apiKey    string
	secretKey string
	streamURL string

	conn      *websocket.Conn
	connMutex sync.Mutex

	handler      TradeUpdateHandler
	handlerMutex sync.RWMutex
}

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type streamRequest struct {
	Action string      `json:"action"`
	Key    string      `json:"key,omitempty"`
	Secret string      `json:"secret,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// NewStream creates a trade-updates stream for the given trading endpoint.
// baseURL is the REST base the client trades against; the stream lives on
// the same host.
func NewStream(apiKey, secretKey, baseURL string) *Stream {
	return &Stream{
		apiKey:    apiKey,
		secretKey: secretKey,
		streamURL: "wss" + baseURL[len("https"):] + "/stream",
	}
}

// OnTradeUpdate registers the handler invoked for every event
func (s *Stream) OnTradeUpdate(handler TradeUpdateHandler) {
	s.handlerMutex.Lock()
	defer s.handlerMutex.Unlock()
	s.handler = handler
}

// Run connects and consumes events until the context is cancelled,
// reconnecting after transient failures
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := s.connectAndListen(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("trade-updates stream dropped: %v (reconnecting in %s)", err, StreamReconnectInterval)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(StreamReconnectInterval):
		}
	}
}

func (s *Stream) connectAndListen(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.streamURL, err)
	}

	s.connMutex.Lock()
	s.conn = conn
	s.connMutex.Unlock()
	defer func() {
		s.connMutex.Lock()
		s.conn = nil
		s.connMutex.Unlock()
		conn.Close()
	}()

	if err := s.write(streamRequest{Action: "auth", Key: s.apiKey, Secret: s.secretKey}); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	listen := streamRequest{
		Action: "listen",
		Data:   map[string][]string{"streams": {"trade_updates"}},
	}
	if err := s.write(listen); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Keepalive pings until the context ends or the connection breaks.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx, conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(StreamReadTimeout)); err != nil {
			return err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg streamMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("trade-updates stream: undecodable message: %v", err)
			continue
		}
		if msg.Stream != "trade_updates" {
			continue
		}

		var update TradeUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			log.Printf("trade-updates stream: undecodable update: %v", err)
			continue
		}

		s.handlerMutex.RLock()
		handler := s.handler
		s.handlerMutex.RUnlock()
		if handler != nil {
			handler(update)
		}
	}
}

func (s *Stream) write(req streamRequest) error {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()
	if s.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(req)
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(StreamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMutex.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(StreamWriteTimeout))
			s.connMutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}
