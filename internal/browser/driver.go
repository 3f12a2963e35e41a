package browser

import (
	"context"
	"strings"
)

type By int

const (
	ByQuery By = iota // CSS selector
	ByID              // element id attribute
)

// Selector locates one element on the active page.
type Selector struct {
	Value string
	By    By
}

func CSS(query string) Selector {
	return Selector{Value: query, By: ByQuery}
}

func ID(id string) Selector {
	return Selector{Value: id, By: ByID}
}

func (s Selector) String() string {
	if s.By == ByID {
		return "#" + s.Value
	}
	return s.Value
}

func describe(selectors []Selector) string {
	parts := make([]string, len(selectors))
	for i, sel := range selectors {
		parts[i] = sel.String()
	}
	return strings.Join(parts, " | ")
}

// WindowID is the protocol identity of a browser window or tab.
type WindowID string

// Element is a handle to a node found on the active window.
type Element interface {
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
}

// Driver is the raw remote-control capability. Implementations never wait for
// elements to appear; Session adds the polling on top.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Query returns the first element matching sel right now, or false if none.
	Query(ctx context.Context, sel Selector) (Element, bool, error)
	// Windows lists open windows in the order the browser reports them.
	Windows(ctx context.Context) ([]WindowID, error)
	Active() WindowID
	SwitchTo(ctx context.Context, id WindowID) error
	Close() error
}
