// Package browsertest provides an in-memory browser.Driver backed by static
// HTML documents, for exercising listing flows without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"nft/seller/internal/browser"
)

type window struct {
	id  browser.WindowID
	url string
	doc *goquery.Document
}

// Browser is a scripted fake. Pages are registered per URL; clicks can trigger
// hooks that open or close windows, the way a wallet extension would.
type Browser struct {
	mu sync.Mutex

	pages   map[string]string
	windows []*window
	active  browser.WindowID
	nextID  int

	hooks      map[string]func(b *Browser)
	clickErrs  map[string]error
	typeErrs   map[string]error
	misses     map[string]int
	navErrs    []error
	windowErrs []error
	closing    map[browser.WindowID]int

	Navigations []string
	Clicks      []string
	Typed       map[string]string
	Queries     []string
	WindowCalls int
	Closed      bool
}

// New returns a browser with one empty window open.
func New() *Browser {
	b := &Browser{
		pages:     make(map[string]string),
		hooks:     make(map[string]func(b *Browser)),
		clickErrs: make(map[string]error),
		typeErrs:  make(map[string]error),
		misses:    make(map[string]int),
		closing:   make(map[browser.WindowID]int),
		Typed:     make(map[string]string),
	}
	w := b.newWindow("about:blank", "<html><body></body></html>")
	b.windows = append(b.windows, w)
	b.active = w.id
	return b
}

func (b *Browser) newWindow(url, html string) *window {
	b.nextID++
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("browsertest: parse html for %s: %v", url, err))
	}
	return &window{id: browser.WindowID(fmt.Sprintf("window-%d", b.nextID)), url: url, doc: doc}
}

// AddPage registers the document served for url.
func (b *Browser) AddPage(url, html string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[url] = html
}

// OnClick runs fn after an element found through selector is clicked.
func (b *Browser) OnClick(selector string, fn func(b *Browser)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[selector] = fn
}

func (b *Browser) FailClick(selector string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clickErrs[selector] = err
}

func (b *Browser) FailType(selector string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.typeErrs[selector] = err
}

// Miss makes the next n queries for selector report no match.
func (b *Browser) Miss(selector string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.misses[selector] = n
}

// FailNavigate makes the next navigations fail with errs, in order.
func (b *Browser) FailNavigate(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navErrs = append(b.navErrs, errs...)
}

// FailWindows makes the next window enumerations fail with errs, in order.
func (b *Browser) FailWindows(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windowErrs = append(b.windowErrs, errs...)
}

// OpenWindow appends a new window showing html. Callable from hooks.
func (b *Browser) OpenWindow(url, html string) browser.WindowID {
	return b.OpenWindowAt(len(b.windows), url, html)
}

// OpenWindowAt inserts a new window at pos in the reported window order.
// Callable from hooks.
func (b *Browser) OpenWindowAt(pos int, url, html string) browser.WindowID {
	w := b.newWindow(url, html)
	pos = max(0, min(pos, len(b.windows)))
	b.windows = append(b.windows[:pos], append([]*window{w}, b.windows[pos:]...)...)
	return w.id
}

// CloseWindow removes id. Callable from hooks.
func (b *Browser) CloseWindow(id browser.WindowID) {
	for i, w := range b.windows {
		if w.id == id {
			b.windows = append(b.windows[:i], b.windows[i+1:]...)
			return
		}
	}
}

// CloseWindowAfter keeps id open for the next polls window enumerations and
// closes it afterwards. Callable from hooks.
func (b *Browser) CloseWindowAfter(id browser.WindowID, polls int) {
	b.closing[id] = polls
}

// ActiveURL returns the URL loaded in the active window.
func (b *Browser) ActiveURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w := b.find(b.active); w != nil {
		return w.url
	}
	return ""
}

func (b *Browser) find(id browser.WindowID) *window {
	for _, w := range b.windows {
		if w.id == id {
			return w
		}
	}
	return nil
}

func (b *Browser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Navigations = append(b.Navigations, url)
	if len(b.navErrs) > 0 {
		err := b.navErrs[0]
		b.navErrs = b.navErrs[1:]
		return err
	}

	html, ok := b.pages[url]
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED %s", url)
	}
	w := b.find(b.active)
	if w == nil {
		return fmt.Errorf("active window %s is gone", b.active)
	}
	loaded := b.newWindow(url, html)
	w.url, w.doc = loaded.url, loaded.doc
	return nil
}

func (b *Browser) Query(_ context.Context, sel browser.Selector) (browser.Element, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := sel.String()
	b.Queries = append(b.Queries, key)
	if n := b.misses[key]; n > 0 {
		b.misses[key] = n - 1
		return nil, false, nil
	}

	w := b.find(b.active)
	if w == nil {
		return nil, false, fmt.Errorf("active window %s is gone", b.active)
	}
	found := w.doc.Find(key).First()
	if found.Length() == 0 {
		return nil, false, nil
	}
	return &element{b: b, sel: found, key: key}, true, nil
}

func (b *Browser) Windows(_ context.Context) ([]browser.WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.WindowCalls++
	if len(b.windowErrs) > 0 {
		err := b.windowErrs[0]
		b.windowErrs = b.windowErrs[1:]
		return nil, err
	}
	for id, n := range b.closing {
		if n <= 0 {
			b.CloseWindow(id)
			delete(b.closing, id)
			continue
		}
		b.closing[id] = n - 1
	}
	ids := make([]browser.WindowID, len(b.windows))
	for i, w := range b.windows {
		ids[i] = w.id
	}
	return ids, nil
}

func (b *Browser) Active() browser.WindowID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Browser) SwitchTo(_ context.Context, id browser.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.find(id) == nil {
		return fmt.Errorf("no such window %s", id)
	}
	b.active = id
	return nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

type element struct {
	b   *Browser
	sel *goquery.Selection
	key string
}

func (e *element) Attribute(_ context.Context, name string) (string, bool, error) {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	val, ok := e.sel.Attr(name)
	return val, ok, nil
}

func (e *element) Click(_ context.Context) error {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()

	if err := e.b.clickErrs[e.key]; err != nil {
		return err
	}
	e.b.Clicks = append(e.b.Clicks, e.key)
	if hook := e.b.hooks[e.key]; hook != nil {
		hook(e.b)
	}
	return nil
}

func (e *element) SendKeys(_ context.Context, text string) error {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()

	if err := e.b.typeErrs[e.key]; err != nil {
		return err
	}
	e.b.Typed[e.key] += text
	e.sel.SetAttr("value", e.b.Typed[e.key])
	return nil
}
