package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/model"
)

// BlotterServiceImpl implements domain.BlotterService on gorm.
type BlotterServiceImpl struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewBlotterService(db *gorm.DB, log *zap.Logger) *BlotterServiceImpl {
	return &BlotterServiceImpl{db: db, log: log}
}

// ApplyUpdate upserts the order or route carried by u. Only fields present
// on the update are written, so partial updates keep earlier values.
// A DELETION update soft-deletes the row.
func (s *BlotterServiceImpl) ApplyUpdate(ctx context.Context, u emsx.Update) error {
	if !u.Status.CarriesData() {
		return domain.ErrNoData
	}
	seq := u.Sequence()
	if seq == 0 {
		return domain.NewBadRequestError("update without EMSX_SEQUENCE")
	}

	fields, err := json.Marshal(u.Map())
	if err != nil {
		return domain.NewInternalError("failed to encode update", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		switch u.Kind {
		case emsx.RouteTopic:
			err = s.applyRoute(tx, u, seq)
		default:
			err = s.applyOrder(tx, u, seq)
		}
		if err != nil {
			return err
		}

		entry := model.UpdateLog{
			Kind:          string(u.Kind),
			Sequence:      seq,
			RouteID:       u.RouteID(),
			EventStatus:   int(u.Status),
			CorrelationID: int64(u.CorrelationID),
			Fields:        string(fields),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return domain.NewInternalError("failed to log update", err)
		}
		return nil
	})
}

func (s *BlotterServiceImpl) applyOrder(tx *gorm.DB, u emsx.Update, seq int64) error {
	var order model.Order
	err := tx.Unscoped().Where("sequence = ?", seq).First(&order).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewInternalError("failed to load order", err)
	}
	order.Sequence = seq
	order.LastEventCode = int(u.Status)
	order.DeletedAt = gorm.DeletedAt{}

	setText(u, "EMSX_TICKER", &order.Ticker)
	setText(u, "EMSX_SIDE", &order.Side)
	setInt(u, "EMSX_AMOUNT", &order.Amount)
	setInt(u, "EMSX_FILLED", &order.Filled)
	setInt(u, "EMSX_WORKING", &order.Working)
	setInt(u, "EMSX_IDLE_AMOUNT", &order.IdleAmount)
	setDecimal(u, "EMSX_AVG_PRICE", &order.AvgPrice)
	setDecimal(u, "EMSX_LIMIT_PRICE", &order.LimitPrice)
	setText(u, "EMSX_ORDER_TYPE", &order.OrderType)
	setText(u, "EMSX_TIF", &order.TIF)
	setText(u, "EMSX_STATUS", &order.Status)
	setText(u, "EMSX_BROKER", &order.Broker)
	setText(u, "EMSX_ACCOUNT", &order.Account)
	setText(u, "EMSX_BASKET_NAME", &order.BasketName)
	setText(u, "EMSX_TRADER", &order.Trader)

	if err := tx.Unscoped().Save(&order).Error; err != nil {
		return domain.NewInternalError("failed to save order", err)
	}
	if u.Status == emsx.StatusDelete {
		if err := tx.Delete(&order).Error; err != nil {
			return domain.NewInternalError("failed to delete order", err)
		}
	}
	return nil
}

func (s *BlotterServiceImpl) applyRoute(tx *gorm.DB, u emsx.Update, seq int64) error {
	routeID := u.RouteID()
	if routeID == 0 {
		return domain.NewBadRequestError("route update without EMSX_ROUTE_ID")
	}

	var route model.Route
	err := tx.Unscoped().Where("sequence = ? AND route_id = ?", seq, routeID).First(&route).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewInternalError("failed to load route", err)
	}
	route.Sequence = seq
	route.RouteID = routeID
	route.LastEventCode = int(u.Status)
	route.DeletedAt = gorm.DeletedAt{}

	setText(u, "EMSX_BROKER", &route.Broker)
	setInt(u, "EMSX_AMOUNT", &route.Amount)
	setInt(u, "EMSX_FILLED", &route.Filled)
	setInt(u, "EMSX_WORKING", &route.Working)
	setDecimal(u, "EMSX_AVG_PRICE", &route.AvgPrice)
	setDecimal(u, "EMSX_LAST_PRICE", &route.LastPrice)
	setDecimal(u, "EMSX_LIMIT_PRICE", &route.LimitPrice)
	setText(u, "EMSX_ORDER_TYPE", &route.OrderType)
	setText(u, "EMSX_STATUS", &route.Status)
	setText(u, "EMSX_STRATEGY_TYPE", &route.StrategyType)
	setText(u, "EMSX_ROUTE_REF_ID", &route.RouteRefID)

	if err := tx.Unscoped().Save(&route).Error; err != nil {
		return domain.NewInternalError("failed to save route", err)
	}
	if u.Status == emsx.StatusDelete {
		if err := tx.Delete(&route).Error; err != nil {
			return domain.NewInternalError("failed to delete route", err)
		}
	}
	return nil
}

func setText(u emsx.Update, name string, dst *string) {
	if v, ok := u.Text(name); ok {
		*dst = v
	}
}

func setInt(u emsx.Update, name string, dst *int64) {
	if v, ok := u.Int(name); ok {
		*dst = v
	}
}

func setDecimal(u emsx.Update, name string, dst *decimal.Decimal) {
	if v, ok := u.Float(name); ok {
		*dst = decimal.NewFromFloat(v)
	}
}

// RecordFills stores fills, skipping ones already known.
func (s *BlotterServiceImpl) RecordFills(ctx context.Context, fills []emsx.Fill) (int, error) {
	stored := 0
	for _, f := range fills {
		executed, err := time.Parse(emsx.FillTimeLayout, f.DateTimeOfFill)
		if err != nil {
			s.log.Warn("BlotterService: bad fill time",
				zap.Int64("sequence", f.OrderID), zap.Int64("fill_id", f.FillID), zap.String("value", f.DateTimeOfFill))
		}
		row := model.Fill{
			FillID:     f.FillID,
			Sequence:   f.OrderID,
			RouteID:    f.RouteID,
			Shares:     decimal.NewFromFloat(f.FillShares),
			Price:      decimal.NewFromFloat(f.FillPrice),
			Ticker:     f.Ticker,
			Side:       f.Side,
			Broker:     f.Broker,
			Exchange:   f.Exchange,
			Currency:   f.Currency,
			Account:    f.Account,
			ExecutedAt: executed.UTC(),
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return stored, domain.NewInternalError("failed to store fill", res.Error)
		}
		stored += int(res.RowsAffected)
	}
	s.log.Info("BlotterService: fills recorded", zap.Int("received", len(fills)), zap.Int("stored", stored))
	return stored, nil
}

// GetOrders lists orders, newest sequence first. An empty status lists all.
func (s *BlotterServiceImpl) GetOrders(ctx context.Context, status string, page, pageSize int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := s.db.WithContext(ctx).Model(&model.Order{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to count orders", err)
	}

	if err := query.Order("sequence DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to fetch orders", err)
	}

	return orders, total, nil
}

func (s *BlotterServiceImpl) GetOrder(ctx context.Context, sequence int64) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Routes", func(db *gorm.DB) *gorm.DB { return db.Order("route_id") }).
		Where("sequence = ?", sequence).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("order not found")
	}
	if err != nil {
		return nil, domain.NewInternalError("failed to fetch order", err)
	}
	return &order, nil
}

func (s *BlotterServiceImpl) GetRoutes(ctx context.Context, sequence int64) ([]model.Route, error) {
	var routes []model.Route
	if err := s.db.WithContext(ctx).
		Where("sequence = ?", sequence).
		Order("route_id").
		Find(&routes).Error; err != nil {
		return nil, domain.NewInternalError("failed to fetch routes", err)
	}
	return routes, nil
}

// GetUpdates returns the most recent updates of an order, newest first.
func (s *BlotterServiceImpl) GetUpdates(ctx context.Context, sequence int64, limit int) ([]model.UpdateLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var logs []model.UpdateLog
	if err := s.db.WithContext(ctx).
		Where("sequence = ?", sequence).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, domain.NewInternalError("failed to fetch updates", err)
	}
	return logs, nil
}

// GetFills returns the fills of an order and their volume weighted price.
func (s *BlotterServiceImpl) GetFills(ctx context.Context, sequence int64) ([]model.Fill, *model.FillSummary, error) {
	var fills []model.Fill
	if err := s.db.WithContext(ctx).
		Where("sequence = ?", sequence).
		Order("fill_id").
		Find(&fills).Error; err != nil {
		return nil, nil, domain.NewInternalError("failed to fetch fills", err)
	}
	return fills, summarize(sequence, fills), nil
}

func summarize(sequence int64, fills []model.Fill) *model.FillSummary {
	sum := &model.FillSummary{
		Sequence: sequence,
		Fills:    len(fills),
		Shares:   decimal.Zero,
		Notional: decimal.Zero,
		VWAP:     decimal.Zero,
	}
	for _, f := range fills {
		sum.Shares = sum.Shares.Add(f.Shares)
		sum.Notional = sum.Notional.Add(f.Shares.Mul(f.Price))
	}
	if !sum.Shares.IsZero() {
		sum.VWAP = sum.Notional.Div(sum.Shares)
	}
	return sum
}

var _ domain.BlotterService = (*BlotterServiceImpl)(nil)
