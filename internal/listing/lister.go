package listing

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	log "github.com/sirupsen/logrus"

	"nft/seller/internal/browser"
	"nft/seller/internal/domain"
	"nft/seller/internal/marketplace"
	"nft/seller/internal/state"
)

// Result describes how the workflow ended for one item.
type Result struct {
	Outcome domain.Outcome
	URL     string
	Detail  string
}

// Lister drives the per-item listing workflow: inspect the listing status,
// fill and submit the price form, then confirm the wallet signature popup.
type Lister struct {
	session    *browser.Session
	markup     marketplace.Markup
	collection string
	price      float64
}

func NewLister(session *browser.Session, markup marketplace.Markup, collection string, price float64) *Lister {
	return &Lister{
		session:    session,
		markup:     markup,
		collection: collection,
		price:      price,
	}
}

// FormatPrice renders a price the way it is typed into the form.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// List runs the workflow for id. Items already in record are skipped without
// touching the browser. Items that end up listed are added to record; the
// caller is responsible for persisting it.
func (l *Lister) List(ctx context.Context, id domain.ItemID, record *state.Record) (Result, error) {
	if record.Contains(id) {
		log.Infof("⏭️ Item %s already set, skipping", id)
		return Result{Outcome: domain.OutcomeSkipped}, nil
	}

	url := marketplace.ListingURL(l.collection, id)
	res := Result{URL: url}

	if err := l.session.Open(ctx, url); err != nil {
		return res, fmt.Errorf("open item %s: %w", id, err)
	}

	status, detail, err := l.inspect(ctx)
	if err != nil {
		return res, fmt.Errorf("inspect item %s: %w", id, err)
	}

	switch status {
	case marketplace.StatusListed:
		log.Infof("✅ Item %s was listed before, adding it to the record", id)
		record.Add(id)
		res.Outcome = domain.OutcomeAlreadyListed
		return res, nil
	case marketplace.StatusNeedsListing:
	default:
		log.Warnf("❓ Item %s has an unrecognized listing state: %s", id, detail)
		res.Outcome = domain.OutcomeUnrecognized
		res.Detail = detail
		return res, nil
	}

	if err := l.fillPrice(ctx, id); err != nil {
		return res, err
	}
	if err := l.submitAndSign(ctx, id); err != nil {
		return res, err
	}

	record.Add(id)
	log.Infof("🎉 Item %s listed at %s", id, FormatPrice(l.price))
	res.Outcome = domain.OutcomeListed
	return res, nil
}

// inspect finds the status element and, when the item still needs listing,
// opens the price form.
func (l *Lister) inspect(ctx context.Context) (marketplace.Status, string, error) {
	el, err := l.session.Locate(ctx, "sell button", l.markup.StatusSelectors()...)
	if err != nil {
		return marketplace.StatusUnknown, "", err
	}

	class, ok, err := l.session.Attribute(ctx, el, "sell button", "class")
	if err != nil {
		return marketplace.StatusUnknown, "", err
	}

	status := l.markup.Classify(class, ok)
	switch {
	case status == marketplace.StatusNeedsListing:
		if err := l.session.Click(ctx, el, "sell button"); err != nil {
			return status, "", err
		}
	case !ok:
		return status, "status element has no class attribute", nil
	case status == marketplace.StatusUnknown:
		return status, fmt.Sprintf("status element class %q", class), nil
	}
	return status, "", nil
}

func (l *Lister) fillPrice(ctx context.Context, id domain.ItemID) error {
	input, err := l.session.Locate(ctx, "price input", l.markup.PriceInput())
	if err != nil {
		return fmt.Errorf("fill price for item %s: %w", id, err)
	}
	price := FormatPrice(l.price)
	if err := l.session.SendKeys(ctx, input, "price input", price); err != nil {
		return fmt.Errorf("fill price for item %s: %w", id, err)
	}
	log.Infof("💰 Item %s price set to %s", id, price)
	return nil
}

// submitAndSign submits the form and drives the signature popup. The popup is
// only observable as a change in the number of open windows, so the window set
// is captured before the click.
func (l *Lister) submitAndSign(ctx context.Context, id domain.ItemID) error {
	submit, err := l.session.Locate(ctx, "submit button", l.markup.Submit())
	if err != nil {
		return fmt.Errorf("submit item %s: %w", id, err)
	}

	baseline, err := l.session.AwaitWindows(ctx, "window list", func([]browser.WindowID) bool { return true })
	if err != nil {
		return fmt.Errorf("submit item %s: %w", id, err)
	}
	original := l.session.Active()
	orgLen := len(baseline)

	if err := l.session.Click(ctx, submit, "submit button"); err != nil {
		return fmt.Errorf("submit item %s: %w", id, err)
	}

	opened, err := l.session.AwaitWindows(ctx, "signature window", func(w []browser.WindowID) bool {
		return len(w) != orgLen
	})
	if err != nil {
		return fmt.Errorf("await signature window for item %s: %w", id, err)
	}
	popup := newWindow(baseline, opened)
	if err := l.session.SwitchWindow(ctx, popup); err != nil {
		return fmt.Errorf("await signature window for item %s: %w", id, err)
	}

	if err := l.locateAndClick(ctx, "signature scroll button", l.markup.Expand()); err != nil {
		return fmt.Errorf("sign item %s: %w", id, err)
	}
	if err := l.locateAndClick(ctx, "signature button", l.markup.Sign()); err != nil {
		return fmt.Errorf("sign item %s: %w", id, err)
	}
	log.Infof("✍️ Item %s signature requested", id)

	closed, err := l.session.AwaitWindows(ctx, "signature window to close", func(w []browser.WindowID) bool {
		return len(w) == orgLen
	})
	if err != nil {
		return fmt.Errorf("await signature completion for item %s: %w", id, err)
	}

	back := original
	if back == "" || !slices.Contains(closed, back) {
		if len(closed) == 0 {
			return fmt.Errorf("%w: no window left to return to for item %s", domain.ErrInteraction, id)
		}
		log.Warnf("⚠️ Original window %q is gone, falling back to the first window", original)
		back = closed[0]
	}
	if err := l.session.SwitchWindow(ctx, back); err != nil {
		return fmt.Errorf("return to listing window for item %s: %w", id, err)
	}
	return nil
}

func (l *Lister) locateAndClick(ctx context.Context, name string, sel browser.Selector) error {
	el, err := l.session.Locate(ctx, name, sel)
	if err != nil {
		return err
	}
	return l.session.Click(ctx, el, name)
}

// newWindow returns the first window in current that was not in baseline, or
// the newest window if none can be told apart.
func newWindow(baseline, current []browser.WindowID) browser.WindowID {
	for _, id := range current {
		if !slices.Contains(baseline, id) {
			return id
		}
	}
	if len(current) == 0 {
		return ""
	}
	return current[len(current)-1]
}
