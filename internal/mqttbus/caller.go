package mqttbus

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/joshp123/mivac/internal/miio"
)

// Caller sends miIO requests over the broker and correlates responses by
// request id.
type Caller struct {
	transport Transport
	topics    Topics
	logger    *log.Logger
	unsub     func()

	mu      sync.Mutex
	pending map[int]chan miio.Response
}

var _ miio.Caller = (*Caller)(nil)

func NewCaller(transport Transport, topics Topics, logger *log.Logger) (*Caller, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", log.LstdFlags)
	}
	c := &Caller{
		transport: transport,
		topics:    topics,
		logger:    logger,
		pending:   make(map[int]chan miio.Response),
	}
	unsub, err := transport.Subscribe(topics.Response(), c.handleResponse)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topics.Response(), err)
	}
	c.unsub = unsub
	return c, nil
}

func (c *Caller) Call(ctx context.Context, method string, params any) (any, error) {
	req := miio.NewRequest(method, params)
	payload, err := miio.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan miio.Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := c.transport.Publish(c.topics.Request(), payload, false); err != nil {
		return nil, fmt.Errorf("publish %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if err := resp.Err(); err != nil {
			return nil, err
		}
		return resp.Result, nil
	}
}

func (c *Caller) handleResponse(payload []byte) {
	resp, err := miio.DecodeResponse(payload)
	if err != nil {
		c.logger.Printf("mqtt %s: %v", c.topics.DeviceID, err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (c *Caller) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}
