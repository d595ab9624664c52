package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ContentItem is the tagged union of response payload shapes a tools/call
// result carries: text, image, or embedded resource. It is an alias for
// the SDK's own Content interface rather than a parallel struct, so the
// same TextContent/ImageContent/EmbeddedResource values that flow through
// the SDK's wire format flow through BTCP's.
type ContentItem = mcp_sdk.Content

func TextItem(text string) ContentItem {
	return &mcp_sdk.TextContent{Text: text}
}

// ImageItem builds an image content item from base64-encoded data, the
// form tool results and data URIs carry it in; the SDK type stores the
// decoded bytes and re-encodes on marshal.
func ImageItem(data, mimeType string) ContentItem {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw = []byte(data)
	}
	return &mcp_sdk.ImageContent{Data: raw, MIMEType: mimeType}
}

// ResourceItem builds an embedded-resource content item. blob, if non-empty,
// is base64-encoded binary content; otherwise text carries the resource's
// textual content.
func ResourceItem(uri, text, mimeType, blob string) ContentItem {
	contents := &mcp_sdk.ResourceContents{URI: uri, MIMEType: mimeType, Text: text}
	if blob != "" {
		if raw, err := base64.StdEncoding.DecodeString(blob); err == nil {
			contents.Blob = raw
		} else {
			contents.Blob = []byte(blob)
		}
	}
	return &mcp_sdk.EmbeddedResource{Resource: contents}
}

// dataURIPrefixes maps a data-URI mime prefix to the inferred image
// mime-type. No entry is a prefix of another, so the first match is the
// only match.
var dataURIPrefixes = []struct {
	prefix   string
	mimeType string
}{
	{"data:image/png", "image/png"},
	{"data:image/jpeg", "image/jpeg"},
	{"data:image/jpg", "image/jpeg"},
	{"data:image/gif", "image/gif"},
	{"data:image/webp", "image/webp"},
	{"data:image/svg+xml", "image/svg+xml"},
}

// looksLikeImage treats a data:image/* prefix, or a long base64-shaped
// run, as an image rather than text.
func looksLikeImage(s string) (mimeType string, isImage bool) {
	if strings.HasPrefix(s, "data:image/") {
		for _, p := range dataURIPrefixes {
			if strings.HasPrefix(s, p.prefix) {
				return p.mimeType, true
			}
		}
		return "image/png", true
	}
	if len(s) >= 100 && isBase64Shaped(s) {
		return "image/png", true
	}
	return "", false
}

func isBase64Shaped(s string) bool {
	// Trim any data-URI payload marker before checking shape.
	if idx := strings.Index(s, ","); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	if len(s)%4 != 0 && !strings.ContainsAny(s, "=") {
		// Not a hard requirement, still attempt a decode below.
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// Normalize coerces an arbitrary handler return value into a list of
// content items.
func Normalize(value any) []ContentItem {
	switch v := value.(type) {
	case []ContentItem:
		return v
	case ContentItem:
		return []ContentItem{v}
	case string:
		if mimeType, ok := looksLikeImage(v); ok {
			data := v
			if idx := strings.Index(v, ","); idx >= 0 && strings.HasPrefix(v, "data:") {
				data = v[idx+1:]
			}
			return []ContentItem{ImageItem(data, mimeType)}
		}
		return []ContentItem{TextItem(v)}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return []ContentItem{TextItem(err.Error())}
		}
		return []ContentItem{TextItem(string(data))}
	}
}
