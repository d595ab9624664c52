package protocol

import (
	"testing"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestNormalizeString(t *testing.T) {
	items := Normalize("hello")
	if len(items) != 1 {
		t.Fatalf("expected a single item, got %+v", items)
	}
	text, ok := items[0].(*mcp_sdk.TextContent)
	if !ok || text.Text != "hello" {
		t.Errorf("expected a text item, got %+v", items[0])
	}
}

func TestNormalizeContentItemPassthrough(t *testing.T) {
	in := TextItem("already wrapped")
	items := Normalize(in)
	if len(items) != 1 || items[0] != in {
		t.Errorf("expected passthrough, got %+v", items)
	}
}

func TestNormalizeContentItemSlicePassthrough(t *testing.T) {
	in := []ContentItem{TextItem("a"), TextItem("b")}
	items := Normalize(in)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestNormalizeDataURIImage(t *testing.T) {
	items := Normalize("data:image/png;base64,aGVsbG8gd29ybGQh")
	if len(items) != 1 {
		t.Fatalf("expected a single item, got %+v", items)
	}
	img, ok := items[0].(*mcp_sdk.ImageContent)
	if !ok {
		t.Fatalf("expected an image item, got %+v", items[0])
	}
	if img.MIMEType != "image/png" {
		t.Errorf("expected image/png, got %s", img.MIMEType)
	}
	if string(img.Data) != "hello world!" {
		t.Errorf("expected decoded image bytes, got %q", img.Data)
	}
}

func TestNormalizeArbitraryValueBecomesJSONText(t *testing.T) {
	items := Normalize(map[string]any{"a": 1})
	if len(items) != 1 {
		t.Fatalf("expected a single item, got %+v", items)
	}
	text, ok := items[0].(*mcp_sdk.TextContent)
	if !ok {
		t.Fatalf("expected a text item, got %+v", items[0])
	}
	if text.Text != `{"a":1}` {
		t.Errorf("unexpected json text: %s", text.Text)
	}
}
