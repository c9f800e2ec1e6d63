package llm

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"triad/internal/agent/ports"
)

// Responder produces the reply to one request. It sees the call index,
// starting at zero.
type Responder func(call int, req ports.CompletionRequest) (*ports.CompletionResponse, error)

// ScriptedClient answers from a queue of canned responses and records every
// request. It backs --dry-run and tests.
type ScriptedClient struct {
	model string

	mu        sync.Mutex
	queue     []scripted
	responder Responder
	requests  []ports.CompletionRequest
}

type scripted struct {
	resp *ports.CompletionResponse
	err  error
}

// NewScriptedClient returns an empty script. Without queued responses or a
// responder it replies with a fixed acknowledgement.
func NewScriptedClient(model string) *ScriptedClient {
	if model == "" {
		model = "scripted"
	}
	return &ScriptedClient{model: model}
}

// Reply queues a plain text response.
func (c *ScriptedClient) Reply(content string) *ScriptedClient {
	return c.ReplyWith(&ports.CompletionResponse{Content: content, StopReason: "stop"})
}

// ReplyWith queues a full response.
func (c *ScriptedClient) ReplyWith(resp *ports.CompletionResponse) *ScriptedClient {
	c.mu.Lock()
	c.queue = append(c.queue, scripted{resp: resp})
	c.mu.Unlock()
	return c
}

// Fail queues an error.
func (c *ScriptedClient) Fail(err error) *ScriptedClient {
	c.mu.Lock()
	c.queue = append(c.queue, scripted{err: err})
	c.mu.Unlock()
	return c
}

// RespondWith installs a responder consulted once the queue is empty.
func (c *ScriptedClient) RespondWith(fn Responder) *ScriptedClient {
	c.mu.Lock()
	c.responder = fn
	c.mu.Unlock()
	return c
}

func (c *ScriptedClient) Model() string {
	return c.model
}

func (c *ScriptedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	call := len(c.requests)
	c.requests = append(c.requests, cloneRequest(req))
	var next *scripted
	if len(c.queue) > 0 {
		head := c.queue[0]
		c.queue = c.queue[1:]
		next = &head
	}
	responder := c.responder
	c.mu.Unlock()

	switch {
	case next != nil:
		if next.err != nil {
			return nil, next.err
		}
		out := *next.resp
		return &out, nil
	case responder != nil:
		return responder(call, req)
	default:
		return &ports.CompletionResponse{Content: fmt.Sprintf("[%s] acknowledged", c.model), StopReason: "stop"}, nil
	}
}

// Requests returns copies of every request seen so far.
func (c *ScriptedClient) Requests() []ports.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.requests)
}

// Calls is the number of Complete calls so far.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func cloneRequest(req ports.CompletionRequest) ports.CompletionRequest {
	out := req
	out.Messages = make([]ports.Message, len(req.Messages))
	for i, msg := range req.Messages {
		out.Messages[i] = msg.Clone()
	}
	out.Tools = slices.Clone(req.Tools)
	return out
}
