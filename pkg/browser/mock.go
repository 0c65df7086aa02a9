package browser

import (
	"context"
	"time"

	"github.com/subterminator/core/pkg/taxonomy"
)

// Mock is an in-memory Driver for tests and for the --target mock CLI mode
// (§9 "S1 — Healthy cancellation, dry-run", "--target live|mock"). It plays
// back a scripted sequence of (url, text) pages, advancing on each
// successful click, fill, or select; it records the label of each of those
// calls in Clicks and counts screenshots.
type Mock struct {
	Pages       []MockPage
	cursor      int
	Clicks      []string
	Screenshots int
}

// MockPage is one scripted observation the Mock driver serves.
type MockPage struct {
	URL  string
	Text string
	HTML string
}

func (m *Mock) current() MockPage {
	if m.cursor >= len(m.Pages) {
		return m.Pages[len(m.Pages)-1]
	}
	return m.Pages[m.cursor]
}

func (m *Mock) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return nil
}

func (m *Mock) advance(label string) error {
	m.Clicks = append(m.Clicks, label)
	if m.cursor < len(m.Pages)-1 {
		m.cursor++
	}
	return nil
}

func (m *Mock) Click(ctx context.Context, selectorOrList []string) error {
	if len(selectorOrList) == 0 {
		return taxonomy.New(taxonomy.KindElementNotFound, "no selector matched within timeout", nil)
	}
	return m.advance(selectorOrList[0])
}

func (m *Mock) ClickByRole(ctx context.Context, role, name string) error {
	return m.advance("role:" + role + ":" + name)
}

func (m *Mock) ClickByText(ctx context.Context, text string, exact bool) error {
	return m.advance("text:" + text)
}

func (m *Mock) ClickAtCoordinates(ctx context.Context, x, y int) error {
	if x < 0 || y < 0 {
		return taxonomy.New(taxonomy.KindInputValidation, "coordinates must be non-negative", nil)
	}
	return m.advance("coordinates")
}

func (m *Mock) Fill(ctx context.Context, selector, value string) error {
	return m.advance("fill:" + selector)
}

func (m *Mock) SelectOption(ctx context.Context, selector, value string) error {
	return m.advance("select:" + selector)
}

func (m *Mock) Screenshot(ctx context.Context) ([]byte, error) {
	m.Screenshots++
	return []byte("fake-png-bytes"), nil
}

func (m *Mock) HTML(ctx context.Context) (string, error) { return m.current().HTML, nil }
func (m *Mock) URL(ctx context.Context) (string, error)  { return m.current().URL, nil }
func (m *Mock) VisibleText(ctx context.Context) (string, error) {
	return m.current().Text, nil
}
func (m *Mock) AccessibilityTree(ctx context.Context) (string, error) { return "{}", nil }
func (m *Mock) Viewport(ctx context.Context) (int, int, error)       { return 1280, 720, nil }
func (m *Mock) ScrollPosition(ctx context.Context) (int, int, error) { return 0, 0, nil }
func (m *Mock) Evaluate(ctx context.Context, js string) (any, error) { return nil, nil }
func (m *Mock) Close() error                                         { return nil }

var _ Driver = (*Mock)(nil)
