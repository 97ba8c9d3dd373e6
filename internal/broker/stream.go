package broker

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fxbot/internal/config"
	"fxbot/internal/models"
	"fxbot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// BarEvent: закрытый бар из WebSocket-фида бриджа.
type BarEvent struct {
	Symbol    string
	Timeframe models.Timeframe
	Bar       models.Candle
}

type StreamKey struct {
	Symbol    string           `json:"symbol"`
	Timeframe models.Timeframe `json:"timeframe"`
}

type Stream struct {
	url      string
	token    string
	dialer   *websocket.Dialer
	ping     time.Duration
	maxDelay time.Duration
}

// NewStream builds ws(s)://<bridge>/stream from the bridge http url.
func NewStream(cfg config.BridgeConfig) (*Stream, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/stream"
	return &Stream{
		url:      u.String(),
		token:    cfg.Token,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ping:     20 * time.Second,
		maxDelay: 30 * time.Second,
	}, nil
}

type streamFrame struct {
	Type      string           `json:"type"`
	Symbol    string           `json:"symbol"`
	Timeframe models.Timeframe `json:"timeframe"`
	Closed    bool             `json:"closed"`
	Bar       models.Candle    `json:"bar"`
}

// Subscribe: одно соединение на все пары symbol/timeframe. Канал закрывается
// при отмене ctx; обрывы связи переподключаются с экспоненциальной паузой.
func (s *Stream) Subscribe(ctx context.Context, keys []StreamKey) <-chan BarEvent {
	ch := make(chan BarEvent)

	go func() {
		defer close(ch)
		if len(keys) == 0 {
			return
		}

		delay := time.Second
		for {
			err := s.session(ctx, keys, ch, func() { delay = time.Second })
			if ctx.Err() != nil {
				return
			}
			logger.Warn("[STREAM] %s: %v, reconnect in %s", s.url, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}
	}()

	return ch
}

func (s *Stream) session(ctx context.Context, keys []StreamKey, ch chan<- BarEvent, connected func()) error {
	hdr := http.Header{}
	if s.token != "" {
		hdr.Set("Authorization", "Bearer "+s.token)
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, hdr)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub, _ := sonic.Marshal(map[string]any{"op": "subscribe", "args": keys})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return err
	}
	connected()
	logger.Info("[STREAM] connected %s, %d subscriptions", s.url, len(keys))

	// keepalive ping, иначе бридж рвёт простаивающее соединение
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(s.ping)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f streamFrame
		if err := sonic.Unmarshal(msg, &f); err != nil {
			continue
		}
		if f.Type != "bar" || !f.Closed || f.Bar.Close <= 0 {
			continue
		}
		select {
		case ch <- BarEvent{Symbol: f.Symbol, Timeframe: models.ParseTimeframe(string(f.Timeframe)), Bar: f.Bar}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
