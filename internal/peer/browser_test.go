package peer

import (
	"context"
	"testing"
)

type fakeBrowser struct {
	clicked   string
	filled    [2]string
	evaluated string
}

func (f *fakeBrowser) Snapshot(ctx context.Context) (string, error) { return "snapshot", nil }
func (f *fakeBrowser) Click(ctx context.Context, selector string) error {
	f.clicked = selector
	return nil
}
func (f *fakeBrowser) Fill(ctx context.Context, selector, value string) error {
	f.filled = [2]string{selector, value}
	return nil
}
func (f *fakeBrowser) Type(ctx context.Context, text string) error                     { return nil }
func (f *fakeBrowser) Hover(ctx context.Context, selector string) error                 { return nil }
func (f *fakeBrowser) Press(ctx context.Context, key string) error                     { return nil }
func (f *fakeBrowser) Scroll(ctx context.Context, direction string, amount int) error   { return nil }
func (f *fakeBrowser) GetText(ctx context.Context, selector string) (string, error)    { return "text", nil }
func (f *fakeBrowser) GetAttribute(ctx context.Context, selector, attr string) (string, error) {
	return "attr", nil
}
func (f *fakeBrowser) IsVisible(ctx context.Context, selector string) (bool, error) { return true, nil }
func (f *fakeBrowser) GetURL(ctx context.Context) (string, error)                   { return "https://example.com", nil }
func (f *fakeBrowser) GetTitle(ctx context.Context) (string, error)                 { return "title", nil }
func (f *fakeBrowser) Screenshot(ctx context.Context) (string, error)               { return "data", nil }
func (f *fakeBrowser) Wait(ctx context.Context, ms int) error                       { return nil }
func (f *fakeBrowser) Evaluate(ctx context.Context, script string) (any, error) {
	f.evaluated = script
	return "result", nil
}

func TestBrowserExecutorsDispatchToInterfaceMethods(t *testing.T) {
	fb := &fakeBrowser{}
	executors := BrowserExecutors(fb)

	if _, ok := executors["click"]; !ok {
		t.Fatal("expected a click executor")
	}
	if _, err := executors["click"](context.Background(), map[string]any{"selector": "#btn"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.clicked != "#btn" {
		t.Errorf("expected click to reach the fake browser, got %q", fb.clicked)
	}

	if _, err := executors["fill"](context.Background(), map[string]any{"selector": "#input", "value": "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.filled != [2]string{"#input", "hi"} {
		t.Errorf("expected fill to reach the fake browser, got %v", fb.filled)
	}

	result, err := executors["getUrl"](context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "https://example.com" {
		t.Errorf("expected getUrl result, got %v", result)
	}
}

func TestBrowserExecutorsCoversAllFifteenOperations(t *testing.T) {
	executors := BrowserExecutors(&fakeBrowser{})
	want := []string{
		"snapshot", "click", "fill", "type", "hover", "press", "scroll",
		"getText", "getAttribute", "isVisible", "getUrl", "getTitle",
		"screenshot", "wait", "evaluate",
	}
	for _, name := range want {
		if _, ok := executors[name]; !ok {
			t.Errorf("expected an executor for %q", name)
		}
	}
}
