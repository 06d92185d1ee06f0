package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"emsxbridge.com/internal/constants"
	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/emsx"
	"emsxbridge.com/internal/event"
	"emsxbridge.com/internal/session"
)

// Requester is the synchronous part of an EMSX session.
type Requester interface {
	GetService(name string) (*session.Service, error)
	OpenService(ctx context.Context, name string) (*session.Service, error)
	Do(ctx context.Context, req *session.Request) ([]*session.Message, error)
}

// RequestObserver is told the outcome of every request.
type RequestObserver interface {
	ObserveRequest(operation string, elapsed time.Duration, err error)
}

// RequestServiceImpl implements domain.RequestService. It runs on HTTP
// goroutines, never on the session's event goroutine.
type RequestServiceImpl struct {
	sess           Requester
	blotter        domain.BlotterService
	bus            *event.Bus
	orderService   string
	historyService string
	observer       RequestObserver
	log            *zap.Logger
}

func NewRequestService(
	sess Requester,
	blotter domain.BlotterService,
	bus *event.Bus,
	orderService, historyService string,
	log *zap.Logger,
) *RequestServiceImpl {
	return &RequestServiceImpl{
		sess:           sess,
		blotter:        blotter,
		bus:            bus,
		orderService:   orderService,
		historyService: historyService,
		log:            log,
	}
}

func (s *RequestServiceImpl) WithObserver(o RequestObserver) *RequestServiceImpl {
	s.observer = o
	return s
}

func (s *RequestServiceImpl) AssignTrader(ctx context.Context, sequences []int64, traderUUID int64) (emsx.AssignTraderResult, error) {
	var result emsx.AssignTraderResult
	msgs, err := s.do(ctx, s.orderService, emsx.AssignTrader{Sequences: sequences, TraderUUID: traderUUID})
	if err != nil {
		return result, err
	}
	result, err = emsx.DecodeAssignTraderResult(msgs[len(msgs)-1])
	if err != nil {
		return result, domain.NewInternalError("failed to decode AssignTrader response", err)
	}
	s.log.Info("RequestService: traders assigned",
		zap.Int("successful", len(result.Successful)), zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *RequestServiceImpl) BrokerStrategies(ctx context.Context, assetClass, broker string) ([]string, error) {
	msgs, err := s.do(ctx, s.orderService, emsx.BrokerStrategies{AssetClass: assetClass, Broker: broker})
	if err != nil {
		return nil, err
	}
	strategies, err := emsx.DecodeStrategies(msgs[len(msgs)-1])
	if err != nil {
		return nil, domain.NewInternalError("failed to decode strategies", err)
	}
	return strategies, nil
}

// SyncFills fetches fills from the history service and records them. A
// fills.synced event is published when at least one new fill was stored.
func (s *RequestServiceImpl) SyncFills(ctx context.Context, from, to time.Time, scope emsx.FillScope) (int, int, error) {
	msgs, err := s.do(ctx, s.historyService, emsx.GetFills{From: from, To: to, Scope: scope})
	if err != nil {
		return 0, 0, err
	}

	var fills []emsx.Fill
	for _, msg := range msgs {
		batch, err := emsx.DecodeFills(msg)
		if err != nil {
			return 0, 0, domain.NewInternalError("failed to decode fills", err)
		}
		fills = append(fills, batch...)
	}

	stored, err := s.blotter.RecordFills(ctx, fills)
	if err != nil {
		return len(fills), stored, err
	}
	if stored > 0 && s.bus != nil {
		s.bus.Publish(event.Event{
			Type:   constants.EventFillsSynced,
			Source: "RequestService",
			Data:   fills,
			Metadata: map[string]any{
				"fetched": len(fills),
				"stored":  stored,
			},
		})
	}
	return len(fills), stored, nil
}

// do sends r on the named service and waits for the answer. ErrorInfo
// answers become rejected errors; at least one message is returned on
// success.
func (s *RequestServiceImpl) do(ctx context.Context, service string, r emsx.Request) (msgs []*session.Message, err error) {
	if s.observer != nil {
		start := time.Now()
		defer func() { s.observer.ObserveRequest(r.Operation(), time.Since(start), err) }()
	}

	svc, err := s.service(ctx, service)
	if err != nil {
		return nil, err
	}

	req, err := emsx.Build(svc, r)
	if err != nil {
		if errors.Is(err, emsx.ErrInvalidRequest) {
			return nil, domain.NewBadRequestError(err.Error())
		}
		return nil, domain.NewInternalError("failed to build request", err)
	}

	msgs, err = s.sess.Do(ctx, req)
	if err != nil {
		return nil, mapSessionError(r.Operation(), err)
	}
	for _, msg := range msgs {
		if re, ok := emsx.AsRequestError(msg); ok {
			s.log.Warn("RequestService: request rejected",
				zap.String("operation", r.Operation()), zap.Int64("code", re.Code), zap.String("message", re.Message))
			return nil, domain.NewRejectedError(re)
		}
	}
	if len(msgs) == 0 {
		return nil, domain.NewInternalError(fmt.Sprintf("empty %s response", r.Operation()), nil)
	}
	return msgs, nil
}

func (s *RequestServiceImpl) service(ctx context.Context, name string) (*session.Service, error) {
	if svc, err := s.sess.GetService(name); err == nil {
		return svc, nil
	}
	svc, err := s.sess.OpenService(ctx, name)
	if err != nil {
		return nil, mapSessionError("open "+name, err)
	}
	s.log.Info("RequestService: service opened", zap.String("service", name))
	return svc, nil
}

func mapSessionError(op string, err error) error {
	switch {
	case errors.Is(err, session.ErrNotStarted), errors.Is(err, session.ErrStopped):
		return domain.NewUnavailableError("emsx session not ready", fmt.Errorf("%w: %v", domain.ErrSessionNotReady, err))
	case errors.Is(err, session.ErrServiceNotOpen), errors.Is(err, session.ErrRequestFailed):
		return domain.NewUnavailableError(op+" failed", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.NewUnavailableError(op+" timed out", err)
	}
	return domain.NewInternalError(op+" failed", err)
}

var _ domain.RequestService = (*RequestServiceImpl)(nil)
