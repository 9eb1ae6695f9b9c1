package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrNotVisible      = errors.New("element not visible")
)

// StrictModeError reports a locator that matched more than one element where
// exactly one was required.
type StrictModeError struct {
	Locator string
	Count   int
}

func (e *StrictModeError) Error() string {
	return fmt.Sprintf("%s resolved to %d elements", e.Locator, e.Count)
}

type locatorKind string

const (
	byRole  locatorKind = "role"
	byLabel locatorKind = "label"
)

// Locator is a lazy element query. It is resolved again on every attempt, so
// it survives re-renders and navigations.
type Locator struct {
	page    *Page
	kind    locatorKind
	role    string
	name    string
	exact   bool
	timeout time.Duration
}

// WithTimeout returns a copy of the locator that waits up to d.
func (l *Locator) WithTimeout(d time.Duration) *Locator {
	clone := *l
	clone.timeout = d
	return &clone
}

func (l *Locator) String() string {
	if l.kind == byLabel {
		return fmt.Sprintf("label=%q", l.name)
	}
	if l.name == "" {
		return fmt.Sprintf("role=%s", l.role)
	}
	return fmt.Sprintf("role=%s[name=%q]", l.role, l.name)
}

// Resolve runs the query once and returns every match in document order.
func (l *Locator) Resolve(ctx context.Context) ([]*Element, error) {
	page := l.page
	result, err := page.evaluate(ctx, queryLocatorJS, false, string(l.kind), l.role, l.name, l.exact)
	if err != nil {
		return nil, err
	}
	arrayID := result.Get("result.objectId").String()
	if arrayID == "" {
		return nil, nil
	}
	defer page.releaseObject(ctx, arrayID)

	props, err := page.send(ctx, "Runtime.getProperties", map[string]any{"objectId": arrayID, "ownProperties": true})
	if err != nil {
		return nil, err
	}
	type indexed struct {
		index    int
		objectID string
	}
	var nodes []indexed
	for _, prop := range props.Get("result").Array() {
		index, err := strconv.Atoi(prop.Get("name").String())
		if err != nil {
			continue
		}
		objectID := prop.Get("value.objectId").String()
		if objectID == "" {
			continue
		}
		nodes = append(nodes, indexed{index: index, objectID: objectID})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })

	elements := make([]*Element, 0, len(nodes))
	for _, node := range nodes {
		desc, err := page.send(ctx, "DOM.describeNode", map[string]any{"objectId": node.objectID})
		if err != nil {
			return nil, err
		}
		backendID := desc.Get("node.backendNodeId").Int()
		if backendID == 0 {
			continue
		}
		elements = append(elements, &Element{page: page, backendNodeID: backendID})
	}
	return elements, nil
}

func (l *Locator) Count(ctx context.Context) (int, error) {
	elements, err := l.Resolve(ctx)
	return len(elements), err
}

// IsVisible checks once, without waiting. No match counts as not visible.
func (l *Locator) IsVisible(ctx context.Context) (bool, error) {
	defer l.page.releaseObjects(ctx)
	elements, err := l.Resolve(ctx)
	if err != nil {
		return false, err
	}
	switch len(elements) {
	case 0:
		return false, nil
	case 1:
		return elements[0].IsVisible(ctx)
	default:
		return false, &StrictModeError{Locator: l.String(), Count: len(elements)}
	}
}

type waitState int

const (
	stateAttached waitState = iota
	stateVisible
)

// wait polls until exactly one element matches and reaches state.
func (l *Locator) wait(ctx context.Context, state waitState, timeout time.Duration) (*Element, error) {
	if timeout <= 0 {
		timeout = l.timeout
	}
	var (
		found   *Element
		matched bool
	)
	err := poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		defer l.page.releaseObjects(ctx)
		elements, err := l.Resolve(ctx)
		if err != nil {
			if transient(err) {
				return false, nil
			}
			return false, err
		}
		if len(elements) > 1 {
			return false, &StrictModeError{Locator: l.String(), Count: len(elements)}
		}
		if len(elements) == 0 {
			matched = false
			return false, nil
		}
		matched = true
		if state == stateAttached {
			found = elements[0]
			return true, nil
		}
		visible, err := elements[0].IsVisible(ctx)
		if err != nil {
			if transient(err) {
				return false, nil
			}
			return false, err
		}
		if visible {
			found = elements[0]
		}
		return visible, nil
	})
	if errors.Is(err, ErrTimeout) {
		if matched {
			return nil, fmt.Errorf("%s after %s: %w", l, timeout, ErrNotVisible)
		}
		return nil, fmt.Errorf("%s after %s: %w", l, timeout, ErrElementNotFound)
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Element waits for exactly one match and returns it.
func (l *Locator) Element(ctx context.Context) (*Element, error) {
	return l.wait(ctx, stateAttached, 0)
}

// ExpectVisible waits until the locator resolves to one visible element.
func (l *Locator) ExpectVisible(ctx context.Context, timeout time.Duration) (*Element, error) {
	return l.wait(ctx, stateVisible, timeout)
}

// WaitHidden waits until no element matching the locator is visible.
func (l *Locator) WaitHidden(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = l.timeout
	}
	err := poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		defer l.page.releaseObjects(ctx)
		elements, err := l.Resolve(ctx)
		if err != nil {
			if transient(err) {
				return false, nil
			}
			return false, err
		}
		for _, el := range elements {
			visible, err := el.IsVisible(ctx)
			if err != nil {
				if transient(err) {
					return false, nil
				}
				return false, err
			}
			if visible {
				return false, nil
			}
		}
		return true, nil
	})
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%s still visible after %s: %w", l, timeout, err)
	}
	return err
}

// Fill waits for the control to be visible and replaces its content.
func (l *Locator) Fill(ctx context.Context, text string) error {
	el, err := l.wait(ctx, stateVisible, 0)
	if err != nil {
		return err
	}
	return el.Fill(ctx, text)
}

// Click waits for the element to be visible and clicks it.
func (l *Locator) Click(ctx context.Context) error {
	el, err := l.wait(ctx, stateVisible, 0)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// releaseObjects drops every remote object the locator queries created.
func (p *Page) releaseObjects(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	_, _ = p.send(ctx, "Runtime.releaseObjectGroup", map[string]any{"objectGroup": objectGroup})
}

func (p *Page) releaseObject(ctx context.Context, objectID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	_, _ = p.send(ctx, "Runtime.releaseObject", map[string]any{"objectId": objectID})
}

// AccessibleNames lists the names of visible elements carrying an explicit
// role, e.g. every tab on the page.
func (p *Page) AccessibleNames(ctx context.Context, role string) ([]string, error) {
	raw, err := p.Evaluate(ctx, accessibleNamesJS, role)
	if err != nil {
		return nil, err
	}
	var names []string
	if raw == "" {
		return names, nil
	}
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, err
	}
	return names, nil
}
