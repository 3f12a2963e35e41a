package listing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft/seller/internal/browser"
	"nft/seller/internal/browser/browsertest"
	"nft/seller/internal/domain"
	"nft/seller/internal/marketplace"
	"nft/seller/internal/state"
)

const collection = "https://market.test/assets/matic/0x27e4c854fd05e672e599bad2dca9aef1c8961b99/"

const popupPage = `<html><body>
<div class="request-signature"><i class="fa fa-arrow-down"></i></div>
<button class="button btn--rounded btn-primary" data-testid="signature-sign-button">Sign</button>
</body></html>`

func listedPage(m marketplace.Markup) string {
	return `<html><body><button class="` + m.ListedClass + `">Cancel listing</button></body></html>`
}

func unlistedPage(m marketplace.Markup) string {
	return `<html><body>
<a class="` + m.ListForSaleClass + `" href="/sell">Sell</a>
<form><input aria-invalid="false" id="price" name="price" placeholder="Amount" value="">
<button type="submit" class="sc-29427738-0 sc-788bb508-0 kqzAEQ bBXuZv">Complete listing</button></form>
</body></html>`
}

func testPolicy() browser.RetryPolicy {
	return browser.RetryPolicy{
		MaxAttempts:  2,
		PollInterval: time.Millisecond,
		Timeout:      3 * time.Millisecond,
		RetryDelay:   time.Millisecond,
		OnExhaustion: browser.ExhaustionFail,
	}
}

// wireWallet makes submit open a signature window at pos that closes itself
// once the signature button is clicked.
func wireWallet(b *browsertest.Browser, m marketplace.Markup, pos int) {
	var popup browser.WindowID
	b.OnClick(m.SubmitSelector, func(b *browsertest.Browser) {
		popup = b.OpenWindowAt(pos, "chrome-extension://wallet/notification.html", popupPage)
	})
	b.OnClick(m.SignSelector, func(b *browsertest.Browser) {
		b.CloseWindow(popup)
	})
}

func newLister(b *browsertest.Browser, m marketplace.Markup) *Lister {
	s := browser.NewSession(b, browser.Options{Policy: testPolicy()})
	return NewLister(s, m, collection, 0.5)
}

func TestListSkipsRecordedItem(t *testing.T) {
	b := browsertest.New()
	record := state.NewRecord(101)

	res, err := newLister(b, marketplace.OpenSea()).List(context.Background(), 101, record)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Empty(t, b.Navigations)
	assert.Empty(t, b.Queries)
	assert.Empty(t, b.Clicks)
	assert.Equal(t, []domain.ItemID{101}, record.IDs())
}

func TestListAlreadyListed(t *testing.T) {
	m := marketplace.OpenSea()
	b := browsertest.New()
	b.AddPage(collection+"7", listedPage(m))
	record := state.NewRecord()

	res, err := newLister(b, m).List(context.Background(), 7, record)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAlreadyListed, res.Outcome)
	assert.Equal(t, collection+"7", res.URL)
	assert.True(t, record.Contains(7))
	assert.Empty(t, b.Clicks)
	assert.Equal(t, []string{m.ListedSelector}, b.Queries)
}

func TestListFullFlow(t *testing.T) {
	m := marketplace.OpenSea()
	b := browsertest.New()
	b.AddPage(collection+"100", unlistedPage(m))
	wireWallet(b, m, 1)
	original := b.Active()
	record := state.NewRecord()

	res, err := newLister(b, m).List(context.Background(), 100, record)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeListed, res.Outcome)
	assert.True(t, record.Contains(100))
	assert.Equal(t, "0.5", b.Typed["#price"])
	assert.Equal(t, []string{
		m.ListForSaleSelector,
		m.SubmitSelector,
		m.ExpandSelector,
		m.SignSelector,
	}, b.Clicks)
	assert.Equal(t, original, b.Active())

	windows, err := b.Windows(context.Background())
	require.NoError(t, err)
	assert.Len(t, windows, 1)
}

func TestListFindsPopupByIdentity(t *testing.T) {
	m := marketplace.OpenSea()
	b := browsertest.New()
	b.AddPage(collection+"3", unlistedPage(m))
	// the wallet window is reported first, so positional switching would pick the wrong one
	wireWallet(b, m, 0)
	original := b.Active()

	res, err := newLister(b, m).List(context.Background(), 3, state.NewRecord())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeListed, res.Outcome)
	assert.Equal(t, original, b.Active())
}

func TestListWaitsForSlowPopupContent(t *testing.T) {
	m := marketplace.OpenSea()
	b := browsertest.New()
	b.AddPage(collection+"4", unlistedPage(m))
	wireWallet(b, m, 1)
	b.Miss(m.ExpandSelector, 5)
	b.Miss("#price", 2)
	policy := testPolicy()
	policy.MaxAttempts = 10
	policy.Timeout = 0
	l := NewLister(browser.NewSession(b, browser.Options{Policy: policy}), m, collection, 0.5)

	res, err := l.List(context.Background(), 4, state.NewRecord())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeListed, res.Outcome)
}

func TestListUnrecognizedState(t *testing.T) {
	m := marketplace.OpenSea()
	m.ListedSelector = "[data-role='status']"
	m.ListForSaleSelector = "a[data-role='status']"

	for name, html := range map[string]string{
		"no class":      `<button data-role="status">?</button>`,
		"drifted class": `<button data-role="status" class="sc-0000 brbNiF">Buy now</button>`,
	} {
		t.Run(name, func(t *testing.T) {
			b := browsertest.New()
			b.AddPage(collection+"9", "<html><body>"+html+"</body></html>")
			record := state.NewRecord()

			res, err := newLister(b, m).List(context.Background(), 9, record)
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeUnrecognized, res.Outcome)
			assert.NotEmpty(t, res.Detail)
			assert.False(t, record.Contains(9))
			assert.Empty(t, b.Clicks)
		})
	}
}

func TestListStatusNotFound(t *testing.T) {
	b := browsertest.New()
	b.AddPage(collection+"5", `<html><body><p>Item not found</p></body></html>`)
	record := state.NewRecord()

	_, err := newLister(b, marketplace.OpenSea()).List(context.Background(), 5, record)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, record.Len())
}

func TestListInteractionFailureIsFatal(t *testing.T) {
	m := marketplace.OpenSea()
	b := browsertest.New()
	b.AddPage(collection+"6", unlistedPage(m))
	wireWallet(b, m, 1)
	b.FailClick(m.SubmitSelector, errors.New("element click intercepted"))
	record := state.NewRecord()

	_, err := newLister(b, m).List(context.Background(), 6, record)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInteraction)
	assert.False(t, record.Contains(6))
	assert.Equal(t, "0.5", b.Typed["#price"])
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "0.5", FormatPrice(0.5))
	assert.Equal(t, "12", FormatPrice(12))
	assert.Equal(t, "0.0015", FormatPrice(0.0015))
}
