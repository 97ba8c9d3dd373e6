// Package broker talks to the MT5 terminal through an HTTP/WebSocket bridge.
package broker

import (
	"context"
	"errors"
	"time"

	"fxbot/internal/models"
)

var ErrNotFound = errors.New("not found")

// MarketData отдаёт стратегиям и анализу бары и параметры символа.
type MarketData interface {
	Bars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error)
	BarsRange(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.Candle, error)
	Symbol(ctx context.Context, name string) (models.SymbolInfo, error)
}

type Broker interface {
	MarketData
	Account(ctx context.Context) (models.Account, error)
	// Positions returns open positions; magic 0 means all of them.
	Positions(ctx context.Context, magic int64) ([]models.Position, error)
	PlaceMarket(ctx context.Context, req OrderRequest) (OrderResult, error)
	ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error
	ClosePosition(ctx context.Context, ticket int64, volume float64) error
	Deals(ctx context.Context, positionTicket int64) ([]models.Deal, error)
}

type OrderRequest struct {
	Symbol    string      `json:"symbol"`
	Side      models.Side `json:"side"`
	Volume    float64     `json:"volume"`
	SL        float64     `json:"sl"`
	TP        float64     `json:"tp"`
	Magic     int64       `json:"magic"`
	Comment   string      `json:"comment"`
	Deviation int         `json:"deviation"`
}

type OrderResult struct {
	Ticket  int64     `json:"ticket"`
	Price   float64   `json:"price"`
	Volume  float64   `json:"volume"`
	Retcode int       `json:"retcode"`
	Comment string    `json:"comment"`
	Time    time.Time `json:"time"`
}
