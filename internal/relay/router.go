package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcp-relay/btcp/internal/logger"
	"github.com/btcp-relay/btcp/internal/metrics"
	"github.com/btcp-relay/btcp/internal/protocol"
	"github.com/btcp-relay/btcp/internal/validation"
)

// Route dispatches one inbound message from sender within session by its
// method/kind, returning the message (if any) to push back to the
// sender's own channel. A provider's response to a forwarded request is
// handed to the forward call waiting inside the caller's own Route, which
// returns it for the caller's channel; for the provider's message this
// function returns nil.
func (srv *Server) Route(ctx context.Context, session *Session, sender *Peer, msg *protocol.Message) *protocol.Message {
	switch msg.Kind {
	case protocol.KindResponse:
		return srv.handleProviderResponse(session, sender, msg)
	case protocol.KindNotification:
		logger.DebugContext(ctx, "dropping inbound notification", "method", msg.Method)
		return nil
	}

	switch msg.Method {
	case "tools/register":
		return srv.handleToolsRegister(ctx, session, sender, msg)
	case "tools/list":
		return srv.handleToolsList(ctx, session, sender, msg)
	case "tools/call":
		return srv.handleToolsCall(ctx, session, sender, msg)
	case "session/join":
		return srv.handleSessionJoin(ctx, sender, msg)
	case "ping":
		return srv.handlePing(msg)
	default:
		logger.WarnContext(ctx, "dropping unknown method", "method", msg.Method)
		return nil
	}
}

func (srv *Server) handleProviderResponse(session *Session, sender *Peer, msg *protocol.Message) *protocol.Message {
	if sender.Role != protocol.RoleProvider {
		return nil
	}
	internalID := msg.StringID()
	if !session.ResolvePending(internalID, msg) {
		logger.Slog().Debug("response for unknown or already-resolved pending route", "internal_id", internalID)
	}
	return nil
}

type toolsRegisterParams struct {
	Tools []protocol.ToolDescriptor `json:"tools"`
}

func (srv *Server) handleToolsRegister(ctx context.Context, session *Session, sender *Peer, msg *protocol.Message) *protocol.Message {
	if sender.Role != protocol.RoleProvider {
		return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindPermission, "only the session provider may register tools"))
	}

	var params toolsRegisterParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindInvalidParams, fmt.Sprintf("invalid tools/register params: %v", err)))
		}
	}

	for _, t := range params.Tools {
		if err := validation.ValidateToolName(t.Name); err != nil {
			return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindInvalidParams, err.Error()))
		}
	}

	session.SetTools(params.Tools)

	updated, err := protocol.NewNotification("tools/updated", map[string]any{"tools": params.Tools})
	if err == nil {
		for _, caller := range session.Callers() {
			caller.Push(*updated)
		}
	}

	resp, _ := protocol.NewResultResponse(msg.ID, map[string]any{"success": true})
	return resp
}

func (srv *Server) handleToolsList(ctx context.Context, session *Session, sender *Peer, msg *protocol.Message) *protocol.Message {
	provider := session.Provider()
	if provider == nil {
		resp, _ := protocol.NewResultResponse(msg.ID, map[string]any{"tools": session.Tools()})
		return resp
	}
	return srv.forward(ctx, session, sender, provider, msg, srv.cfg.RequestTimeout(), true)
}

type toolsCallParams struct {
	Name string `json:"name"`
}

func (srv *Server) handleToolsCall(ctx context.Context, session *Session, sender *Peer, msg *protocol.Message) *protocol.Message {
	var params toolsCallParams
	if len(msg.Params) > 0 {
		json.Unmarshal(msg.Params, &params)
	}
	tool := params.Name
	if tool == "" {
		tool = "unknown"
	}

	provider := session.Provider()
	if provider == nil {
		metrics.RecordToolCall(tool, "session_error")
		return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindSession, fmt.Sprintf("session %s has no attached provider", session.ID)))
	}

	resp := srv.forward(ctx, session, sender, provider, msg, srv.cfg.RequestTimeout(), false)
	if resp == nil {
		return nil
	}
	if resp.Error != nil {
		metrics.RecordToolCall(tool, "error")
	} else {
		metrics.RecordToolCall(tool, "success")
	}
	return resp
}

type sessionJoinParams struct {
	SessionID string `json:"sessionId"`
}

func (srv *Server) handleSessionJoin(ctx context.Context, sender *Peer, msg *protocol.Message) *protocol.Message {
	var params sessionJoinParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindInvalidParams, fmt.Sprintf("invalid session/join params: %v", err)))
		}
	}

	if err := validation.ValidateSessionID(params.SessionID); err != nil {
		return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindInvalidParams, err.Error()))
	}

	target, ok := srv.registry.GetSession(params.SessionID)
	if !ok {
		return protocol.NewErrorResponse(msg.ID, protocol.NewError(protocol.KindSession, fmt.Sprintf("session %s not found", params.SessionID)))
	}

	if old, ok := srv.registry.GetSession(sender.SessionID); ok && old != target {
		srv.registry.Detach(old, sender)
	}
	srv.registry.AttachCaller(target.ID, sender)
	sender.SessionID = target.ID

	resp, _ := protocol.NewResultResponse(msg.ID, map[string]any{
		"success":   true,
		"sessionId": target.ID,
		"tools":     target.Tools(),
	})
	return resp
}

func (srv *Server) handlePing(msg *protocol.Message) *protocol.Message {
	resp, _ := protocol.NewResultResponse(msg.ID, map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339Nano)})
	return resp
}
