package browser

import (
	"context"
	"errors"
	"math"

	"github.com/tidwall/gjson"
)

const objectGroup = "adminverify"

const (
	isVisibleJS = `function() {
  if (!this.isConnected) return false;
  const style = window.getComputedStyle(this);
  if (!style || style.visibility === 'hidden' || style.visibility === 'collapse') return false;
  const rect = this.getBoundingClientRect();
  return rect.width > 0 && rect.height > 0;
}`
	selectContentsJS = `function() {
  this.focus();
  if (typeof this.select === 'function') { this.select(); return; }
  if (this.isContentEditable) {
    const range = document.createRange();
    range.selectNodeContents(this);
    const selection = window.getSelection();
    selection.removeAllRanges();
    selection.addRange(range);
  }
}`
	clearValueJS = `function() {
  const proto = this instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  const setter = Object.getOwnPropertyDescriptor(proto, 'value');
  if (setter && setter.set) { setter.set.call(this, ''); } else { this.value = ''; }
  this.dispatchEvent(new Event('input', {bubbles: true}));
  this.dispatchEvent(new Event('change', {bubbles: true}));
}`
)

type Element struct {
	page          *Page
	backendNodeID int64
}

func (e *Element) send(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	return e.page.send(ctx, method, params)
}

func (e *Element) resolveObjectID(ctx context.Context) (string, error) {
	result, err := e.send(ctx, "DOM.resolveNode", map[string]any{"backendNodeId": e.backendNodeID, "objectGroup": objectGroup})
	if err != nil {
		return "", err
	}
	objID := result.Get("object.objectId").String()
	if objID == "" {
		return "", errors.New("objectId missing")
	}
	return objID, nil
}

func (e *Element) callFunction(ctx context.Context, declaration string, args ...any) (gjson.Result, error) {
	objectID, err := e.resolveObjectID(ctx)
	if err != nil {
		return gjson.Result{}, err
	}
	defer e.page.releaseObject(ctx, objectID)
	argList := make([]map[string]any, 0, len(args))
	for _, arg := range args {
		argList = append(argList, map[string]any{"value": arg})
	}
	result, err := e.send(ctx, "Runtime.callFunctionOn", map[string]any{
		"functionDeclaration": declaration,
		"objectId":            objectID,
		"arguments":           argList,
		"returnByValue":       true,
		"awaitPromise":        true,
	})
	if err != nil {
		return gjson.Result{}, err
	}
	if exc := result.Get("exceptionDetails"); exc.Exists() {
		return gjson.Result{}, &CDPError{Method: "Runtime.callFunctionOn", Message: exc.Get("exception.description").String()}
	}
	return result.Get("result.value"), nil
}

func (e *Element) Evaluate(ctx context.Context, function string, args ...any) (string, error) {
	value, err := e.callFunction(ctx, function, args...)
	if err != nil {
		return "", err
	}
	if !value.Exists() || value.Type == gjson.Null {
		return "", nil
	}
	if value.Type == gjson.String {
		return value.String(), nil
	}
	return value.Raw, nil
}

func (e *Element) Focus(ctx context.Context) error {
	_, err := e.send(ctx, "DOM.focus", map[string]any{"backendNodeId": e.backendNodeID})
	return err
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	_, err := e.send(ctx, "DOM.scrollIntoViewIfNeeded", map[string]any{"backendNodeId": e.backendNodeID})
	if err == nil {
		return nil
	}
	_, err = e.callFunction(ctx, "function() { this.scrollIntoView({block:'center', inline:'center'}); }")
	return err
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	value, err := e.callFunction(ctx, isVisibleJS)
	if err != nil {
		return false, err
	}
	return value.Bool(), nil
}

// Fill replaces the control's content with text using real input events.
func (e *Element) Fill(ctx context.Context, text string) error {
	if err := e.ScrollIntoView(ctx); err != nil {
		return err
	}
	if text == "" {
		_, err := e.callFunction(ctx, clearValueJS)
		return err
	}
	if _, err := e.callFunction(ctx, selectContentsJS); err != nil {
		return err
	}
	return e.page.InsertText(ctx, text)
}

// Click presses the left mouse button at the centre of the element, falling
// back to a DOM click when the element has no layout quads.
func (e *Element) Click(ctx context.Context) error {
	if err := e.ScrollIntoView(ctx); err != nil {
		return err
	}
	layout, err := e.send(ctx, "Page.getLayoutMetrics", nil)
	if err != nil {
		return err
	}
	viewportWidth := layout.Get("cssLayoutViewport.clientWidth").Float()
	viewportHeight := layout.Get("cssLayoutViewport.clientHeight").Float()
	if viewportWidth == 0 || viewportHeight == 0 {
		viewportWidth = layout.Get("layoutViewport.clientWidth").Float()
		viewportHeight = layout.Get("layoutViewport.clientHeight").Float()
	}

	result, err := e.send(ctx, "DOM.getContentQuads", map[string]any{"backendNodeId": e.backendNodeID})
	quad := result.Get("quads.0").Array()
	if err != nil || len(quad) < 8 {
		_, err := e.callFunction(ctx, "function() { this.click(); }")
		return err
	}
	var sumX, sumY float64
	for i := 0; i < 8; i += 2 {
		sumX += quad[i].Float()
		sumY += quad[i+1].Float()
	}
	centerX := math.Max(0, math.Min(viewportWidth-1, sumX/4))
	centerY := math.Max(0, math.Min(viewportHeight-1, sumY/4))
	return e.page.Mouse().Click(ctx, centerX, centerY)
}

func (e *Element) GetAttribute(ctx context.Context, name string) (string, error) {
	return e.Evaluate(ctx, "function(name) { return this.getAttribute(name); }", name)
}

// GetBoundingBox returns the border box in CSS pixels relative to the viewport.
func (e *Element) GetBoundingBox(ctx context.Context) (BoundingBox, error) {
	result, err := e.send(ctx, "DOM.getBoxModel", map[string]any{"backendNodeId": e.backendNodeID})
	if err != nil {
		return BoundingBox{}, err
	}
	border := result.Get("model.border").Array()
	if len(border) < 8 {
		return BoundingBox{}, errors.New("border quad missing")
	}
	minX, minY := border[0].Float(), border[1].Float()
	maxX, maxY := minX, minY
	for i := 0; i < 8; i += 2 {
		x, y := border[i].Float(), border[i+1].Float()
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}
