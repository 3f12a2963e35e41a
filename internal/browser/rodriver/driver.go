package rodriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	log "github.com/sirupsen/logrus"

	"nft/seller/internal/browser"
)

// Options describe how the rod driver reaches a browser.
type Options struct {
	// WebSocketURL attaches to a running browser. When empty a browser is launched.
	WebSocketURL string
	ExecPath     string
	UserDataDir  string
	Headless     bool
	Port         int
}

// Driver implements browser.Driver with go-rod.
type Driver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher

	mu     sync.Mutex
	pages  map[browser.WindowID]*rod.Page
	active browser.WindowID
}

func New(ctx context.Context, opts Options) (*Driver, error) {
	controlURL := opts.WebSocketURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().
			Context(ctx).
			Set("disable-gpu").
			Set("disable-blink-features", "AutomationControlled").
			Set("remote-debugging-port", fmt.Sprint(opts.Port)).
			Headless(opts.Headless).
			Leakless(false)
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		if opts.ExecPath != "" {
			l = l.Bin(opts.ExecPath)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	p, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open working window: %w", err)
	}

	id := browser.WindowID(p.TargetID)
	log.Infof("🧭 rod session ready on window %s", id)

	return &Driver{
		browser:  b,
		launcher: l,
		pages:    map[browser.WindowID]*rod.Page{id: p},
		active:   id,
	}, nil
}

func (d *Driver) current() *rod.Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[d.active]
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p := d.current().Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (d *Driver) Query(ctx context.Context, sel browser.Selector) (browser.Element, bool, error) {
	query := sel.Value
	if sel.By == browser.ByID {
		query = fmt.Sprintf("[id=%q]", sel.Value)
	}

	elements, err := d.current().Context(ctx).Elements(query)
	if err != nil {
		return nil, false, err
	}
	if elements.Empty() {
		return nil, false, nil
	}
	return &element{el: elements.First()}, true, nil
}

func (d *Driver) Windows(ctx context.Context) ([]browser.WindowID, error) {
	pages, err := d.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}

	ids := make([]browser.WindowID, 0, len(pages))
	open := make(map[browser.WindowID]bool, len(pages))
	for _, p := range pages {
		id := browser.WindowID(p.TargetID)
		ids = append(ids, id)
		open[id] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.pages {
		if !open[id] && id != d.active {
			delete(d.pages, id)
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
	p, ok := d.pages[id]
	d.mu.Unlock()

	if !ok {
		var err error
		p, err = d.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(id))
		if err != nil {
			return fmt.Errorf("attach to window %s: %w", id, err)
		}
	}
	if _, err := p.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("activate window %s: %w", id, err)
	}

	d.mu.Lock()
	d.pages[id] = p
	d.active = id
	d.mu.Unlock()
	return nil
}

// Close closes the working window. A launched browser is shut down, an
// attached one keeps running.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.launcher == nil {
		for _, p := range d.pages {
			_ = p.Close()
		}
		return nil
	}
	err := d.browser.Close()
	return err
}

type element struct {
	el *rod.Element
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	value, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}
