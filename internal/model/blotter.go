package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the latest known state of one EMSX order, keyed by EMSX_SEQUENCE.
type Order struct {
	gorm.Model
	Sequence      int64           `gorm:"uniqueIndex;not null" json:"Sequence"`
	Ticker        string          `gorm:"index" json:"Ticker"`
	Side          string          `gorm:"type:varchar(16)" json:"Side"`
	Amount        int64           `json:"Amount"`
	Filled        int64           `json:"Filled"`
	Working       int64           `json:"Working"`
	IdleAmount    int64           `json:"IdleAmount"`
	AvgPrice      decimal.Decimal `gorm:"type:decimal(20,8)" json:"AvgPrice"`
	LimitPrice    decimal.Decimal `gorm:"type:decimal(20,8)" json:"LimitPrice"`
	OrderType     string          `gorm:"type:varchar(16)" json:"OrderType"`
	TIF           string          `gorm:"type:varchar(16)" json:"TIF"`
	Status        string          `gorm:"type:varchar(32);index" json:"Status"`
	Broker        string          `json:"Broker"`
	Account       string          `json:"Account"`
	BasketName    string          `gorm:"index" json:"BasketName"`
	Trader        string          `json:"Trader"`
	LastEventCode int             `json:"LastEventCode"`

	Routes []Route `gorm:"foreignKey:Sequence;references:Sequence" json:"Routes,omitempty"`
}

// Route is the latest known state of one route of an order.
type Route struct {
	gorm.Model
	Sequence      int64           `gorm:"uniqueIndex:idx_route_seq_id;not null" json:"Sequence"`
	RouteID       int64           `gorm:"uniqueIndex:idx_route_seq_id;not null" json:"RouteID"`
	Broker        string          `json:"Broker"`
	Amount        int64           `json:"Amount"`
	Filled        int64           `json:"Filled"`
	Working       int64           `json:"Working"`
	AvgPrice      decimal.Decimal `gorm:"type:decimal(20,8)" json:"AvgPrice"`
	LastPrice     decimal.Decimal `gorm:"type:decimal(20,8)" json:"LastPrice"`
	LimitPrice    decimal.Decimal `gorm:"type:decimal(20,8)" json:"LimitPrice"`
	OrderType     string          `gorm:"type:varchar(16)" json:"OrderType"`
	Status        string          `gorm:"type:varchar(32);index" json:"Status"`
	StrategyType  string          `json:"StrategyType"`
	RouteRefID    string          `json:"RouteRefID"`
	LastEventCode int             `json:"LastEventCode"`
}

// UpdateLog keeps every order and route update as received.
type UpdateLog struct {
	ID            uint      `gorm:"primaryKey" json:"ID"`
	Kind          string    `gorm:"type:varchar(8);index" json:"Kind"`
	Sequence      int64     `gorm:"index" json:"Sequence"`
	RouteID       int64     `json:"RouteID"`
	EventStatus   int       `json:"EventStatus"`
	CorrelationID int64     `json:"CorrelationID"`
	Fields        string    `gorm:"type:text" json:"Fields"`
	CreatedAt     time.Time `json:"CreatedAt"`
}

// Fill is one execution returned by the history service.
type Fill struct {
	ID         uint            `gorm:"primaryKey" json:"ID"`
	FillID     int64           `gorm:"uniqueIndex:idx_fill_order_fill;not null" json:"FillID"`
	Sequence   int64           `gorm:"uniqueIndex:idx_fill_order_fill;index;not null" json:"Sequence"`
	RouteID    int64           `json:"RouteID"`
	Shares     decimal.Decimal `gorm:"type:decimal(20,8)" json:"Shares"`
	Price      decimal.Decimal `gorm:"type:decimal(20,8)" json:"Price"`
	Ticker     string          `json:"Ticker"`
	Side       string          `json:"Side"`
	Broker     string          `json:"Broker"`
	Exchange   string          `json:"Exchange"`
	Currency   string          `json:"Currency"`
	Account    string          `json:"Account"`
	ExecutedAt time.Time       `gorm:"index" json:"ExecutedAt"`
	CreatedAt  time.Time       `json:"CreatedAt"`
}

// FillSummary aggregates the fills of one order.
type FillSummary struct {
	Sequence int64           `json:"Sequence"`
	Fills    int             `json:"Fills"`
	Shares   decimal.Decimal `json:"Shares"`
	Notional decimal.Decimal `json:"Notional"`
	VWAP     decimal.Decimal `json:"VWAP"`
}
