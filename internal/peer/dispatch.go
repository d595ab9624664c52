package peer

import (
	"context"

	"github.com/btcp-relay/btcp/internal/logger"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// dispatch classifies one inbound message and routes it: requests through
// the handler table (with result normalization), responses against the
// local pending table, notifications to observers.
func (c *Client) dispatch(ctx context.Context, msg *protocol.Message) {
	switch msg.Kind {
	case protocol.KindRequest:
		c.dispatchRequest(ctx, msg)
	case protocol.KindResponse:
		if !c.resolvePending(msg.StringID(), msg) {
			logger.DebugContext(ctx, "dropping unmatched response", "id", msg.StringID())
		}
	case protocol.KindNotification:
		c.events.emit("message", msg)
		if msg.Method == "connected" {
			return // already handled in handleFrame
		}
	}
}

func (c *Client) dispatchRequest(ctx context.Context, msg *protocol.Message) {
	c.mu.Lock()
	handler, ok := c.handlers[msg.Method]
	c.mu.Unlock()

	if !ok {
		reply := protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindMethodNotFound, "no handler for method "+msg.Method))
		c.reply(ctx, reply)
		return
	}

	c.events.emit("toolCall", msg)

	result, err := safeInvoke(ctx, handler, msg.Params)
	if err != nil {
		var reply *protocol.Message
		if msg.Method == "tools/call" {
			reply = protocol.NewToolCallErrorResponse(msg.ID, toProtocolError(err))
		} else {
			reply = protocol.NewErrorResponse(msg.ID, toProtocolError(err))
		}
		c.reply(ctx, reply)
		return
	}

	reply, err := protocol.NewResultResponse(msg.ID, map[string]any{
		"content": protocol.Normalize(result),
		"isError": false,
	})
	if err != nil {
		reply = protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindInternal, err.Error()))
	}
	c.reply(ctx, reply)
}

// safeInvoke runs a handler, recovering a panic into an error so a handler
// exception never escapes the dispatch loop.
func safeInvoke(ctx context.Context, h HandlerFunc, params []byte) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = protocol.NewError(protocol.KindExecution, "handler panicked")
		}
	}()
	return h(ctx, params)
}

func toProtocolError(err error) *protocol.Error {
	if pe, ok := err.(*protocol.Error); ok {
		return pe
	}
	return protocol.NewError(protocol.KindExecution, err.Error())
}

func (c *Client) reply(ctx context.Context, msg *protocol.Message) {
	if err := c.post(ctx, msg); err != nil {
		logger.WarnContext(ctx, "failed to post reply", "error", err)
	}
}
