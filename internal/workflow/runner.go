// Package workflow holds the event-dispatch skeleton shared by every EMSX
// program: start the session, open one service, hand control to an Action
// and stop once the action is finished.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"emsxbridge.com/internal/printer"
	"emsxbridge.com/internal/session"
)

var (
	ErrSessionFailed     = errors.New("workflow: session failed")
	ErrSessionTerminated = errors.New("workflow: session terminated")
	ErrServiceOpenFailed = errors.New("workflow: service failed to open")
)

// Action is what a program does once its service is open. Both methods run
// on the session's event goroutine, so they may only use the asynchronous
// session calls.
type Action interface {
	Begin(ctx context.Context, s *session.Session, r *Runner) error
	Handle(ev *session.Event, s *session.Session, r *Runner)
}

// Ender is implemented by actions that release what they set up before the
// session stops.
type Ender interface {
	End(ctx context.Context, s *session.Session) error
}

type Runner struct {
	service string
	action  Action
	out     *printer.Printer
	log     *zap.Logger

	ctx        context.Context
	serviceCID session.CorrelationID

	once sync.Once
	done chan struct{}
	err  error
}

func NewRunner(service string, action Action, out *printer.Printer, log *zap.Logger) *Runner {
	return &Runner{
		service: service,
		action:  action,
		out:     out,
		log:     log,
		ctx:     context.Background(),
		done:    make(chan struct{}),
	}
}

func (r *Runner) Service() string           { return r.service }
func (r *Runner) Printer() *printer.Printer { return r.out }
func (r *Runner) Context() context.Context  { return r.ctx }
func (r *Runner) Done() <-chan struct{}     { return r.done }
func (r *Runner) Logger() *zap.Logger       { return r.log }

// Finish ends the run. Only the first call counts.
func (r *Runner) Finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *Runner) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Err is the outcome of a finished run.
func (r *Runner) Err() error {
	if !r.finished() {
		return nil
	}
	return r.err
}

// Run starts sess, which must have been created with r as its handler, and
// blocks until the action finishes, the session ends or ctx is cancelled.
// The session is stopped before Run returns.
func (r *Runner) Run(ctx context.Context, sess *session.Session) error {
	r.ctx = ctx
	if err := sess.StartAsync(ctx); err != nil {
		if !errors.Is(err, session.ErrAlreadyStarted) {
			sess.Stop()
		}
		return fmt.Errorf("workflow: start session: %w", err)
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		r.Finish(ctx.Err())
	case <-sess.Done():
		if err := sess.Err(); err != nil {
			r.Finish(fmt.Errorf("%w: %v", ErrSessionFailed, err))
		} else {
			r.Finish(ErrSessionTerminated)
		}
	}

	if e, ok := r.action.(Ender); ok && sess.State() == session.StateStarted {
		endCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := e.End(endCtx, sess); err != nil {
			r.log.Warn("Runner: action cleanup failed", zap.Error(err))
		}
		cancel()
	}

	sess.Stop()
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		r.log.Warn("Runner: session did not stop in time")
	}
	return r.err
}

// ProcessEvent implements session.EventHandler.
func (r *Runner) ProcessEvent(ev *session.Event, s *session.Session) {
	switch ev.Type {
	case session.EventAdmin:
		r.processAdmin(ev)
	case session.EventSessionStatus:
		r.processSessionStatus(ev, s)
	case session.EventServiceStatus:
		r.processServiceStatus(ev, s)
	case session.EventSubscriptionStatus, session.EventSubscriptionData,
		session.EventResponse, session.EventPartialResponse, session.EventRequestStatus:
		r.action.Handle(ev, s, r)
	default:
		r.processMisc(ev)
	}
}

func (r *Runner) processAdmin(ev *session.Event) {
	r.out.EventHeader(ev.Type)
	for _, msg := range ev.Messages {
		switch msg.Type {
		case session.SlowConsumerWarning:
			r.out.Println("Warning: Entered Slow Consumer status")
			r.log.Warn("Runner: slow consumer")
		case session.SlowConsumerWarningCleared:
			r.out.Println("Slow consumer status cleared")
		default:
			r.out.Message(msg)
		}
	}
}

func (r *Runner) processSessionStatus(ev *session.Event, s *session.Session) {
	r.out.EventHeader(ev.Type)
	for _, msg := range ev.Messages {
		switch msg.Type {
		case session.SessionStarted:
			r.out.Println("Session started...")
			cid, err := s.OpenServiceAsync(r.ctx, r.service)
			if err != nil {
				r.log.Error("Runner: open service failed", zap.String("service", r.service), zap.Error(err))
				r.Finish(err)
				return
			}
			r.serviceCID = cid
		case session.SessionStartupFailure:
			r.out.Println("Error: Session startup failed")
			r.Finish(fmt.Errorf("%w: startup failure", ErrSessionFailed))
		case session.SessionTerminated:
			if r.finished() {
				r.out.Println("Session terminated")
				continue
			}
			r.out.Println("Error: Session has been terminated")
			r.Finish(ErrSessionTerminated)
		case session.SessionConnectionUp:
			r.out.Println("Session connection is up")
		case session.SessionConnectionDown:
			r.out.Println("Error: Session connection is down")
		default:
			r.out.Message(msg)
		}
	}
}

func (r *Runner) processServiceStatus(ev *session.Event, s *session.Session) {
	r.out.EventHeader(ev.Type)
	for _, msg := range ev.Messages {
		if msg.CorrelationID() != r.serviceCID {
			r.out.Message(msg)
			continue
		}
		switch msg.Type {
		case session.ServiceOpened:
			r.out.Println("Service opened...")
			if err := r.action.Begin(r.ctx, s, r); err != nil {
				r.out.Printf("Error: %v\n", err)
				r.Finish(err)
			}
		case session.ServiceOpenFailure:
			r.out.Println("Error: Service failed to open")
			r.Finish(fmt.Errorf("%w: %s", ErrServiceOpenFailed, r.service))
		default:
			r.out.Message(msg)
		}
	}
}

func (r *Runner) processMisc(ev *session.Event) {
	r.out.EventHeader(ev.Type)
	for _, msg := range ev.Messages {
		r.out.Message(msg)
	}
}
