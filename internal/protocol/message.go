// Package protocol implements the BTCP wire format: a JSON-RPC-2.0-shaped
// message set split into Request, Response and Notification variants, plus
// the content-item union carried in tool-call results.
package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

// Kind classifies a decoded message by the presence of id/method.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
)

// Envelope is the raw wire shape shared by all three variants. ID is left as
// json.RawMessage so that string and integer ids round-trip without loss,
// per the source's discriminated-union rule in the data model.
type Envelope struct {
	Protocol string          `json:"jsonrpc"`
	ID       json.RawMessage `json:"id,omitempty"`
	Method   string          `json:"method,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *WireError      `json:"error,omitempty"`
}

// WireError is the on-the-wire shape of a message's error field.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Message is the parsed, classified form of an Envelope.
type Message struct {
	Kind   Kind
	ID     json.RawMessage
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *WireError
}

// Parse decodes a single JSON value and classifies it. No batch form is
// accepted; malformed JSON yields a parse-error kind, and a decoded value
// missing jsonrpc="2.0" yields an invalid-request kind.
func Parse(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewError(KindParse, fmt.Sprintf("invalid JSON: %v", err))
	}
	if env.Protocol != Version {
		return nil, NewError(KindInvalidRequest, "missing or wrong jsonrpc version")
	}

	m := &Message{
		ID:     env.ID,
		Method: env.Method,
		Params: env.Params,
		Result: env.Result,
		Error:  env.Error,
	}

	switch {
	case len(env.ID) > 0 && env.Method != "":
		m.Kind = KindRequest
	case len(env.ID) > 0 && env.Method == "":
		m.Kind = KindResponse
	case len(env.ID) == 0 && env.Method != "":
		m.Kind = KindNotification
	default:
		return nil, NewError(KindInvalidRequest, "message has neither id nor method")
	}
	return m, nil
}

// NewRequest builds a request message ready to serialize.
func NewRequest(id, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{Kind: KindRequest, ID: quoteID(id), Method: method, Params: raw}, nil
}

// NewNotification builds a notification message ready to serialize.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{Kind: KindNotification, Method: method, Params: raw}, nil
}

// NewResultResponse builds a successful response carrying result.
func NewResultResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{Kind: KindResponse, ID: id, Result: raw}, nil
}

// NewErrorResponse builds a failed response carrying err.
func NewErrorResponse(id json.RawMessage, err *Error) *Message {
	return &Message{
		Kind: KindResponse,
		ID:   id,
		Error: &WireError{
			Code:    err.Code,
			Message: err.Message,
			Data:    err.Data,
		},
	}
}

// NewToolCallErrorResponse builds a tools/call failure response carrying
// both result.isError=true and a top-level error, matching the source's
// documented double-signal behavior (design note 3: implementations may
// choose to emit one or the other, but BTCP preserves the pairing).
func NewToolCallErrorResponse(id json.RawMessage, err *Error) *Message {
	result, _ := json.Marshal(map[string]any{
		"content": []ContentItem{TextItem(err.Message)},
		"isError": true,
	})
	return &Message{
		Kind:   KindResponse,
		ID:     id,
		Result: result,
		Error: &WireError{
			Code:    err.Code,
			Message: err.Message,
			Data:    err.Data,
		},
	}
}

// Marshal serializes a Message back to its wire Envelope.
func (m *Message) Marshal() ([]byte, error) {
	env := Envelope{
		Protocol: Version,
		ID:       m.ID,
		Method:   m.Method,
		Params:   m.Params,
		Result:   m.Result,
		Error:    m.Error,
	}
	return json.Marshal(env)
}

// StringID renders the message id as a plain Go string for map keys and
// logging, handling both quoted-string and bare-integer wire forms.
func (m *Message) StringID() string {
	return rawIDToString(m.ID)
}

func rawIDToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func quoteID(id string) json.RawMessage {
	b, _ := json.Marshal(id)
	return b
}

// StringToID renders a plain Go string as a JSON string id, for callers
// outside this package that need to build a Message by hand (e.g. the
// relay's id-rewriting forward path).
func StringToID(id string) json.RawMessage {
	return quoteID(id)
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
