package broker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fxbot/internal/config"
	"fxbot/internal/models"

	"github.com/bytedance/sonic"
)

// BridgeError: ответ бриджа с {"error": "..."} и не-2xx статусом.
type BridgeError struct {
	Status  int
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge http %d: %s", e.Status, e.Message)
}

type BridgeClient struct {
	base  string
	token string
	http  *http.Client
}

func NewBridgeClient(cfg config.BridgeConfig) (*BridgeClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge url is empty")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("bridge url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BridgeClient{
		base:  strings.TrimRight(cfg.URL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *BridgeClient) Bars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", string(tf))
	q.Set("count", strconv.Itoa(count))
	var out []models.Candle
	if err := c.do(ctx, http.MethodGet, "/bars", q, nil, &out); err != nil {
		return nil, fmt.Errorf("bars %s %s: %w", symbol, tf, err)
	}
	return out, nil
}

func (c *BridgeClient) BarsRange(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", string(tf))
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	var out []models.Candle
	if err := c.do(ctx, http.MethodGet, "/bars", q, nil, &out); err != nil {
		return nil, fmt.Errorf("bars %s %s [%s, %s]: %w", symbol, tf, from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return out, nil
}

func (c *BridgeClient) Account(ctx context.Context) (models.Account, error) {
	var out models.Account
	if err := c.do(ctx, http.MethodGet, "/account", nil, nil, &out); err != nil {
		return models.Account{}, fmt.Errorf("account: %w", err)
	}
	return out, nil
}

func (c *BridgeClient) Symbol(ctx context.Context, name string) (models.SymbolInfo, error) {
	var out models.SymbolInfo
	if err := c.do(ctx, http.MethodGet, "/symbols/"+url.PathEscape(name), nil, nil, &out); err != nil {
		return models.SymbolInfo{}, fmt.Errorf("symbol %s: %w", name, err)
	}
	return out, nil
}

func (c *BridgeClient) Positions(ctx context.Context, magic int64) ([]models.Position, error) {
	q := url.Values{}
	if magic != 0 {
		q.Set("magic", strconv.FormatInt(magic, 10))
	}
	var out []models.Position
	if err := c.do(ctx, http.MethodGet, "/positions", q, nil, &out); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	return out, nil
}

func (c *BridgeClient) PlaceMarket(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var out OrderResult
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, &out); err != nil {
		return OrderResult{}, fmt.Errorf("place %s %s %.2f: %w", req.Side, req.Symbol, req.Volume, err)
	}
	if out.Ticket == 0 {
		return out, fmt.Errorf("place %s %s: no ticket (retcode=%d %s)", req.Side, req.Symbol, out.Retcode, out.Comment)
	}
	return out, nil
}

func (c *BridgeClient) ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error {
	body := map[string]float64{"sl": sl, "tp": tp}
	path := "/positions/" + strconv.FormatInt(ticket, 10) + "/modify"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("modify #%d: %w", ticket, err)
	}
	return nil
}

func (c *BridgeClient) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	body := map[string]float64{"volume": volume}
	path := "/positions/" + strconv.FormatInt(ticket, 10) + "/close"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("close #%d: %w", ticket, err)
	}
	return nil
}

func (c *BridgeClient) Deals(ctx context.Context, positionTicket int64) ([]models.Deal, error) {
	q := url.Values{}
	q.Set("position", strconv.FormatInt(positionTicket, 10))
	var out []models.Deal
	if err := c.do(ctx, http.MethodGet, "/deals", q, nil, &out); err != nil {
		return nil, fmt.Errorf("deals #%d: %w", positionTicket, err)
	}
	return out, nil
}

func (c *BridgeClient) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var env struct {
			Error string `json:"error"`
		}
		_ = sonic.Unmarshal(rb, &env)
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(rb))
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return &BridgeError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(rb) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(rb, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
