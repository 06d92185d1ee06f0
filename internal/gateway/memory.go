package gateway

import (
	"context"
	"sync"
)

type pipe struct {
	commands chan Command
	events   chan Envelope
	closed   chan struct{}
	once     sync.Once
}

func (p *pipe) close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// NewPipe connects a Transport and an Endpoint in process.
func NewPipe(buffer int) (Transport, Endpoint) {
	p := &pipe{
		commands: make(chan Command, buffer),
		events:   make(chan Envelope, buffer),
		closed:   make(chan struct{}),
	}
	return &pipeClient{p}, &pipeServer{p}
}

type pipeClient struct{ *pipe }

func (c *pipeClient) Send(ctx context.Context, cmd Command) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.commands <- cmd:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pipeClient) Receive(ctx context.Context) (Envelope, error) {
	select {
	case env := <-c.events:
		return env, nil
	case <-c.closed:
		return Envelope{}, ErrClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *pipeClient) Close() error { return c.close() }

type pipeServer struct{ *pipe }

func (s *pipeServer) Recv(ctx context.Context) (Command, error) {
	select {
	case cmd := <-s.commands:
		return cmd, nil
	case <-s.closed:
		return Command{}, ErrClosed
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

func (s *pipeServer) Emit(ctx context.Context, env Envelope) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	select {
	case s.events <- env:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pipeServer) Close() error { return s.close() }
