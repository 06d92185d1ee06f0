package domain

import (
	"context"
	"time"

	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/model"
)

// ===========================
// Blotter
// ===========================

// BlotterService keeps the persisted order and route blotter.
type BlotterService interface {
	// ApplyUpdate stores the current state carried by a subscription
	// update and appends it to the update log.
	ApplyUpdate(ctx context.Context, u emsx.Update) error
	// RecordFills stores fills, skipping ones already known. It returns
	// the number of new fills.
	RecordFills(ctx context.Context, fills []emsx.Fill) (int, error)

	GetOrders(ctx context.Context, status string, page, pageSize int) ([]model.Order, int64, error)
	GetOrder(ctx context.Context, sequence int64) (*model.Order, error)
	GetRoutes(ctx context.Context, sequence int64) ([]model.Route, error)
	GetUpdates(ctx context.Context, sequence int64, limit int) ([]model.UpdateLog, error)
	GetFills(ctx context.Context, sequence int64) ([]model.Fill, *model.FillSummary, error)
}

// ===========================
// EMSX requests
// ===========================

// RequestService issues EMSX requests over the live session.
type RequestService interface {
	AssignTrader(ctx context.Context, sequences []int64, traderUUID int64) (emsx.AssignTraderResult, error)
	BrokerStrategies(ctx context.Context, assetClass, broker string) ([]string, error)
	// SyncFills fetches fills between from and to and records them.
	SyncFills(ctx context.Context, from, to time.Time, scope emsx.FillScope) (fetched, stored int, err error)
}

// ===========================
// WebSocket push
// ===========================

// Notifier pushes blotter updates to connected clients.
type Notifier interface {
	// PushUpdate sends an update to clients watching its order, and to
	// clients watching the whole blotter.
	PushUpdate(u emsx.Update)
	ClientCount() int
}
