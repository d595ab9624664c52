package protocol

import (
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDescriptor describes one callable a provider publishes. Names are
// unique within a session's catalogue; a later tools/register call replaces
// the catalogue wholesale rather than merging. The name/description/schema
// triple embeds the SDK's own Tool rather than redeclaring it; Capabilities
// and Metadata are BTCP-only extensions the SDK has no field for.
type ToolDescriptor struct {
	mcp_sdk.Tool
	Capabilities []string       `json:"capabilities,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Role distinguishes the two peer kinds.
type Role string

const (
	RoleProvider Role = "provider"
	RoleCaller   Role = "caller"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleProvider, RoleCaller:
		return Role(s), true
	default:
		return "", false
	}
}
