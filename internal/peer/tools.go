package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/btcp-relay/btcp/internal/protocol"
)

// ToolExecutor is the local implementation backing one registered tool.
type ToolExecutor func(ctx context.Context, arguments map[string]any) (any, error)

type toolEntry struct {
	descriptor protocol.ToolDescriptor
	executor   ToolExecutor
	schema     *protocol.ToolSchema
}

type toolTable struct {
	mu    sync.RWMutex
	tools map[string]*toolEntry
	order []string
}

func newToolTable() *toolTable {
	return &toolTable{tools: make(map[string]*toolEntry)}
}

// RegisterTool adds one tool and its local executor to the provider's
// table. Executors take an untyped argument map and return a result
// value; the schema is compiled once up front so every call reuses it.
func (c *Client) RegisterTool(def protocol.ToolDescriptor, executor ToolExecutor) error {
	schema, err := protocol.CompileSchema(def.InputSchema)
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", def.Name, err)
	}

	c.tools.mu.Lock()
	if _, exists := c.tools.tools[def.Name]; !exists {
		c.tools.order = append(c.tools.order, def.Name)
	}
	c.tools.tools[def.Name] = &toolEntry{descriptor: def, executor: executor, schema: schema}
	c.tools.mu.Unlock()
	return nil
}

// RegisterTools sends a tools/register request to the relay carrying the
// explicitly-given descriptor set, or every locally registered tool if
// descriptors is nil.
func (c *Client) RegisterTools(ctx context.Context, descriptors []protocol.ToolDescriptor) (*protocol.Message, error) {
	if descriptors == nil {
		c.tools.mu.RLock()
		descriptors = make([]protocol.ToolDescriptor, 0, len(c.tools.order))
		for _, name := range c.tools.order {
			descriptors = append(descriptors, c.tools.tools[name].descriptor)
		}
		c.tools.mu.RUnlock()
	}
	return c.Request(ctx, "tools/register", map[string]any{"tools": descriptors})
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// handleToolCall is the built-in tools/call handler installed automatically
// for provider clients: it looks up the named executor, validates
// arguments against the tool's compiled schema, runs it, and lets the
// generic dispatch loop normalize the result.
func (c *Client) handleToolCall(ctx context.Context, raw []byte) (any, error) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, protocol.NewError(protocol.KindInvalidParams, fmt.Sprintf("invalid tools/call params: %v", err))
	}

	c.tools.mu.RLock()
	entry, ok := c.tools.tools[params.Name]
	c.tools.mu.RUnlock()
	if !ok {
		return nil, protocol.NewError(protocol.KindToolNotFound, fmt.Sprintf("tool %s is not registered", params.Name))
	}

	if verr := entry.schema.Validate(params.Arguments); verr != nil {
		return nil, verr
	}

	return entry.executor(ctx, params.Arguments)
}
