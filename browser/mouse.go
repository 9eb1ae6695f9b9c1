package browser

import "context"

// Mouse dispatches pointer input to one page, in CSS pixels relative to the
// viewport.
type Mouse struct {
	page *Page
}

func (p *Page) Mouse() *Mouse {
	return &Mouse{page: p}
}

func (m *Mouse) Move(ctx context.Context, x, y float64) error {
	_, err := m.page.send(ctx, "Input.dispatchMouseEvent", map[string]any{"type": "mouseMoved", "x": x, "y": y})
	return err
}

// Click moves to (x, y) and presses and releases the left button.
func (m *Mouse) Click(ctx context.Context, x, y float64) error {
	if err := m.Move(ctx, x, y); err != nil {
		return err
	}
	for _, eventType := range []string{"mousePressed", "mouseReleased"} {
		params := map[string]any{"type": eventType, "x": x, "y": y, "button": "left", "clickCount": 1}
		if _, err := m.page.send(ctx, "Input.dispatchMouseEvent", params); err != nil {
			return err
		}
	}
	return nil
}
