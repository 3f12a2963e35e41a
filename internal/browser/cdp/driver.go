package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"

	"nft/seller/internal/browser"
)

// Options describe how the chromedp driver reaches a browser.
type Options struct {
	// WebSocketURL attaches to a running browser. When empty a browser is launched.
	WebSocketURL string
	ExecPath     string
	UserDataDir  string
	Headless     bool
	Port         int
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Driver implements browser.Driver over the Chrome DevTools protocol.
type Driver struct {
	cancelAlloc context.CancelFunc
	root        tab
	rootID      browser.WindowID
	attached    bool

	mu     sync.Mutex
	tabs   map[browser.WindowID]tab
	active browser.WindowID
}

func New(ctx context.Context, opts Options) (*Driver, error) {
	allocCtx, cancelAlloc := newAllocator(ctx, opts)

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf), chromedp.WithErrorf(log.Debugf))
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser session: %w", err)
	}

	id := browser.WindowID(chromedp.FromContext(tabCtx).Target.TargetID)
	root := tab{ctx: tabCtx, cancel: cancelTab}
	log.Infof("🧭 chromedp session ready on window %s", id)

	return &Driver{
		cancelAlloc: cancelAlloc,
		root:        root,
		rootID:      id,
		attached:    opts.WebSocketURL != "",
		tabs:        map[browser.WindowID]tab{id: root},
		active:      id,
	}, nil
}

func newAllocator(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.WebSocketURL != "" {
		return chromedp.NewRemoteAllocator(ctx, opts.WebSocketURL)
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("remote-debugging-port", fmt.Sprint(opts.Port)),
		chromedp.WindowSize(1440, 900),
	)
	if opts.UserDataDir != "" {
		execOpts = append(execOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return chromedp.NewExecAllocator(ctx, execOpts...)
}

// within runs fn on the given tab, bound to ctx cancellation.
func within(ctx context.Context, t tab, fn func(ctx context.Context) error) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := fn(runCtx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func run(ctx context.Context, t tab, actions ...chromedp.Action) error {
	return within(ctx, t, func(ctx context.Context) error {
		return chromedp.Run(ctx, actions...)
	})
}

func (d *Driver) current() tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tabs[d.active]
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return run(ctx, d.current(), chromedp.Navigate(url))
}

func (d *Driver) Query(ctx context.Context, sel browser.Selector) (browser.Element, bool, error) {
	by := chromedp.ByQuery
	if sel.By == browser.ByID {
		by = chromedp.ByID
	}

	t := d.current()
	var nodes []*cdp.Node
	if err := run(ctx, t, chromedp.Nodes(sel.Value, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, false, err
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return &element{tab: t, node: nodes[0]}, true, nil
}

// Windows lists page targets; closed popups are forgotten.
func (d *Driver) Windows(ctx context.Context) ([]browser.WindowID, error) {
	var infos []*target.Info
	err := within(ctx, d.root, func(ctx context.Context) error {
		var err error
		infos, err = chromedp.Targets(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]browser.WindowID, 0, len(infos))
	open := make(map[browser.WindowID]bool, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		id := browser.WindowID(info.TargetID)
		ids = append(ids, id)
		open[id] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.tabs {
		if !open[id] && id != d.rootID {
			t.cancel()
			delete(d.tabs, id)
		}
	}
	return ids, nil
}

func (d *Driver) Active() browser.WindowID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Driver) SwitchTo(ctx context.Context, id browser.WindowID) error {
	d.mu.Lock()
	t, ok := d.tabs[id]
	d.mu.Unlock()

	if !ok {
		tabCtx, cancel := chromedp.NewContext(d.root.ctx, chromedp.WithTargetID(target.ID(id)))
		t = tab{ctx: tabCtx, cancel: cancel}
	}
	if err := run(ctx, t, page.BringToFront()); err != nil {
		if !ok {
			t.cancel()
		}
		return fmt.Errorf("attach to window %s: %w", id, err)
	}

	d.mu.Lock()
	d.tabs[id] = t
	d.active = id
	d.mu.Unlock()
	return nil
}

// Close closes the working window. A launched browser is shut down, an
// attached one keeps running.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.cancelAlloc()
	d.tabs = map[browser.WindowID]tab{}

	if d.attached {
		err := run(context.Background(), d.root, page.Close())
		d.root.cancel()
		return err
	}
	if err := chromedp.Cancel(d.root.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type element struct {
	tab  tab
	node *cdp.Node
}

func (e *element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := run(ctx, e.tab, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID))
	return value, ok, err
}

func (e *element) Click(ctx context.Context) error {
	return run(ctx, e.tab, chromedp.MouseClickNode(e.node))
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return run(ctx, e.tab, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}
