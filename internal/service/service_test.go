package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft/seller/internal/browser"
	"nft/seller/internal/browser/browsertest"
	"nft/seller/internal/config"
	"nft/seller/internal/domain"
	"nft/seller/internal/domain/task"
	"nft/seller/internal/listing"
	"nft/seller/internal/marketplace"
	"nft/seller/internal/queue"
	"nft/seller/internal/state"
)

const collection = "https://market.test/assets/matic/0x27e4c854fd05e672e599bad2dca9aef1c8961b99/"

const popupPage = `<html><body><i class="fa fa-arrow-down"></i>
<button data-testid="signature-sign-button">Sign</button></body></html>`

// countingStore wraps a real store and can fail from a given write on.
type countingStore struct {
	state.Store
	persists  int
	failAfter int
	snapshots [][]domain.ItemID
}

func (s *countingStore) Persist(ctx context.Context, r *state.Record) error {
	s.persists++
	if s.failAfter > 0 && s.persists >= s.failAfter {
		return errors.New("disk full")
	}
	s.snapshots = append(s.snapshots, r.IDs())
	return s.Store.Persist(ctx, r)
}

func marketplaceBrowser(m marketplace.Markup, unlisted ...domain.ItemID) *browsertest.Browser {
	b := browsertest.New()
	for _, id := range unlisted {
		b.AddPage(marketplace.ListingURL(collection, id), `<html><body>
<a class="`+m.ListForSaleClass+`">Sell</a>
<input id="price" name="price"><button type="submit">Complete listing</button>
</body></html>`)
	}
	var popup browser.WindowID
	b.OnClick(m.SubmitSelector, func(b *browsertest.Browser) {
		popup = b.OpenWindow("chrome-extension://wallet/notification.html", popupPage)
	})
	b.OnClick(m.SignSelector, func(b *browsertest.Browser) {
		b.CloseWindow(popup)
	})
	return b
}

func newTestService(t *testing.T, b *browsertest.Browser, store state.Store, record *state.Record, items domain.ItemRange) *Service {
	t.Helper()
	session := browser.NewSession(b, browser.Options{Policy: browser.RetryPolicy{
		MaxAttempts:  2,
		PollInterval: time.Millisecond,
		Timeout:      2 * time.Millisecond,
		RetryDelay:   time.Millisecond,
		OnExhaustion: browser.ExhaustionFail,
	}})
	return NewService(Params{
		Lister:     listing.NewLister(session, marketplace.OpenSea(), collection, 0.5),
		Store:      store,
		Record:     record,
		Items:      items,
		Collection: collection,
		Price:      0.5,
		RunID:      "test-run",
	})
}

func TestRunSellResumesAroundRecordedItem(t *testing.T) {
	ctx := context.Background()
	m := marketplace.OpenSea()
	b := marketplaceBrowser(m, 100, 102)
	path := filepath.Join(t.TempDir(), "selled.json")
	store := &countingStore{Store: state.NewFileStore(path)}

	svc := newTestService(t, b, store, state.NewRecord(101), domain.ItemRange{Start: 100, End: 102})
	summary, err := svc.RunSell(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Listed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 3, summary.Recorded)
	assert.Equal(t, 2, store.persists, "snapshot is written once per processed item")
	assert.Equal(t, []string{
		marketplace.ListingURL(collection, 100),
		marketplace.ListingURL(collection, 102),
	}, b.Navigations, "the recorded item must not touch the browser")

	loaded, err := state.NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ItemID{100, 101, 102}, loaded.IDs())
}

func TestRunSellProgressIsMonotonic(t *testing.T) {
	m := marketplace.OpenSea()
	b := marketplaceBrowser(m, 1, 2, 3, 4)
	store := &countingStore{Store: state.NewFileStore(filepath.Join(t.TempDir(), "selled.json"))}

	svc := newTestService(t, b, store, state.NewRecord(), domain.ItemRange{Start: 1, End: 4})
	_, err := svc.RunSell(context.Background())
	require.NoError(t, err)

	require.Len(t, store.snapshots, 4)
	for i := 1; i < len(store.snapshots); i++ {
		prev, cur := store.snapshots[i-1], store.snapshots[i]
		assert.GreaterOrEqual(t, len(cur), len(prev))
		assert.Subset(t, cur, prev)
	}
}

func TestRunSellStopsOnPersistenceFailure(t *testing.T) {
	m := marketplace.OpenSea()
	b := marketplaceBrowser(m, 100, 101, 102)
	store := &countingStore{Store: state.NewFileStore(filepath.Join(t.TempDir(), "selled.json")), failAfter: 1}

	svc := newTestService(t, b, store, state.NewRecord(), domain.ItemRange{Start: 100, End: 102})
	_, err := svc.RunSell(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{marketplace.ListingURL(collection, 100)}, b.Navigations)
	assert.Equal(t, []domain.ItemID{100}, svc.Record().IDs(), "in-memory record keeps the unsaved item")
}

func TestRunSellStopsWhenSnapshotCannotBeReplaced(t *testing.T) {
	m := marketplace.OpenSea()
	b := marketplaceBrowser(m, 1)
	dir := t.TempDir()
	// a directory where the snapshot should be makes the rename fail
	path := filepath.Join(dir, "selled.json")
	require.NoError(t, os.MkdirAll(path, 0o755))

	svc := newTestService(t, b, state.NewFileStore(path), state.NewRecord(), domain.ItemRange{Start: 1, End: 2})
	_, err := svc.RunSell(context.Background())
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestRunSellStopsOnFatalListingError(t *testing.T) {
	m := marketplace.OpenSea()
	b := marketplaceBrowser(m, 1, 2)
	b.FailType("#price", errors.New("element not interactable"))
	store := &countingStore{Store: state.NewFileStore(filepath.Join(t.TempDir(), "selled.json"))}

	svc := newTestService(t, b, store, state.NewRecord(), domain.ItemRange{Start: 1, End: 2})
	_, err := svc.RunSell(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInteraction)
	assert.Equal(t, 0, store.persists)
	assert.Len(t, b.Navigations, 1)
}

func TestRunSellPublishesOutcomes(t *testing.T) {
	m := marketplace.OpenSea()
	b := marketplaceBrowser(m, 2)
	b.AddPage(marketplace.ListingURL(collection, 1), `<html><body><button class="`+m.ListedClass+`">Listed</button></body></html>`)
	store := &countingStore{Store: state.NewFileStore(filepath.Join(t.TempDir(), "selled.json"))}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisQueue(client, config.RedisConfig{StreamPrefix: "nftseller:stream:"})

	svc := newTestService(t, b, store, state.NewRecord(), domain.ItemRange{Start: 1, End: 3})
	svc.queue = q
	// item 3 has no page registered at all: navigation fails and the run stops
	_, err := svc.RunSell(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNavigation)

	assert.Equal(t, 2, store.persists)
	assert.ElementsMatch(t, []domain.ItemID{1, 2}, svc.Record().IDs())

	outcomes, err := q.ReadTasks(context.Background(), "ListingOutcomeTask", 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	latest, err := task.UnmarshalTask[*task.ListingOutcomeTask]([]byte(outcomes[0].Values["task_data"].(string)))
	require.NoError(t, err)
	assert.Equal(t, "listed", latest.Outcome)
	assert.EqualValues(t, 2, latest.ItemID)
	assert.Equal(t, "test-run", latest.RunID)
	assert.True(t, strings.EqualFold("0x27e4c854fd05e672e599bad2dca9aef1c8961b99", latest.Contract), latest.Contract)
}

func TestRunSellReportsUnrecognizedForReview(t *testing.T) {
	m := marketplace.OpenSea()
	m.ListedSelector = "button[data-role='status']"
	b := browsertest.New()
	b.AddPage(marketplace.ListingURL(collection, 5), `<html><body><button data-role="status" class="sold">Sold</button></body></html>`)
	store := &countingStore{Store: state.NewFileStore(filepath.Join(t.TempDir(), "selled.json"))}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisQueue(client, config.RedisConfig{StreamPrefix: "nftseller:stream:"})

	session := browser.NewSession(b, browser.Options{Policy: browser.RetryPolicy{MaxAttempts: 1, PollInterval: time.Millisecond, OnExhaustion: browser.ExhaustionFail}})
	svc := NewService(Params{
		Lister:     listing.NewLister(session, m, collection, 0.5),
		Store:      store,
		Record:     state.NewRecord(),
		Items:      domain.ItemRange{Start: 5, End: 5},
		Collection: collection,
		Price:      0.5,
		RunID:      "r",
		Queue:      q,
	})

	summary, err := svc.RunSell(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unrecognized)
	assert.Equal(t, []domain.ItemID{5}, summary.UnrecognizedIDs)
	assert.Equal(t, 1, store.persists)
	assert.Equal(t, 0, svc.Record().Len())

	reviews, err := q.ReadTasks(context.Background(), "ReviewItemTask", 10)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	review, err := task.UnmarshalTask[*task.ReviewItemTask]([]byte(reviews[0].Values["task_data"].(string)))
	require.NoError(t, err)
	assert.EqualValues(t, 5, review.ItemID)
	assert.Contains(t, review.Reason, "sold")
}

func TestRunSellHonoursCancellation(t *testing.T) {
	b := marketplaceBrowser(marketplace.OpenSea(), 1)
	store := &countingStore{Store: state.NewFileStore(filepath.Join(t.TempDir(), "selled.json"))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, b, store, state.NewRecord(), domain.ItemRange{Start: 1, End: 1})
	_, err := svc.RunSell(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.Navigations)
}

func TestRunSellFinishesItemCancelledDuringSignature(t *testing.T) {
	m := marketplace.OpenSea()
	b := marketplaceBrowser(m, 100, 101)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var popup browser.WindowID
	b.OnClick(m.SubmitSelector, func(b *browsertest.Browser) {
		popup = b.OpenWindow("chrome-extension://wallet/notification.html", popupPage)
	})
	// Ctrl-C right after signing, while the wallet window is still open
	b.OnClick(m.SignSelector, func(b *browsertest.Browser) {
		cancel()
		b.CloseWindowAfter(popup, 3)
	})
	path := filepath.Join(t.TempDir(), "selled.json")
	store := &countingStore{Store: state.NewFileStore(path)}

	svc := newTestService(t, b, store, state.NewRecord(), domain.ItemRange{Start: 100, End: 101})
	summary, err := svc.RunSell(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, summary.Listed)
	assert.Equal(t, []string{marketplace.ListingURL(collection, 100)}, b.Navigations, "the next item must not start")
	assert.Equal(t, 1, store.persists)

	loaded, err := state.NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{100}, loaded.IDs())
}

// cancellingLister lists the item and then cancels the run.
type cancellingLister struct {
	cancel context.CancelFunc
}

func (l *cancellingLister) List(_ context.Context, id domain.ItemID, record *state.Record) (listing.Result, error) {
	record.Add(id)
	l.cancel()
	return listing.Result{Outcome: domain.OutcomeListed}, nil
}

func TestRunSellPersistsItemFinishedAsRunIsCancelled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := state.NewRedisStore(client, "nftseller:progress:", collection)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewService(Params{
		Lister: &cancellingLister{cancel: cancel},
		Store:  store,
		Record: state.NewRecord(),
		Items:  domain.ItemRange{Start: 100, End: 101},
	})

	_, err := svc.RunSell(ctx)
	require.ErrorIs(t, err, context.Canceled)

	durable, err := state.NewRedisStore(client, "nftseller:progress:", collection).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{100}, durable.IDs())
}

// stubLister records invocations without a browser.
type stubLister struct {
	calls []domain.ItemID
}

func (l *stubLister) List(_ context.Context, id domain.ItemID, record *state.Record) (listing.Result, error) {
	l.calls = append(l.calls, id)
	record.Add(id)
	return listing.Result{Outcome: domain.OutcomeListed}, nil
}

func TestRunSellPacesItems(t *testing.T) {
	lister := &stubLister{}
	svc := NewService(Params{
		Lister:         lister,
		Store:          state.NewFileStore(filepath.Join(t.TempDir(), "selled.json")),
		Record:         state.NewRecord(),
		Items:          domain.ItemRange{Start: 1, End: 3},
		ItemsPerMinute: 6000,
	})

	started := time.Now()
	summary, err := svc.RunSell(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{1, 2, 3}, lister.calls)
	assert.Equal(t, 3, summary.Listed)
	assert.GreaterOrEqual(t, time.Since(started), 15*time.Millisecond)
}

func TestRunSellCancelsWhileWaitingForPacing(t *testing.T) {
	lister := &stubLister{}
	svc := NewService(Params{
		Lister:         lister,
		Store:          state.NewFileStore(filepath.Join(t.TempDir(), "selled.json")),
		Record:         state.NewRecord(),
		Items:          domain.ItemRange{Start: 1, End: 3},
		ItemsPerMinute: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	started := time.Now()
	_, err := svc.RunSell(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []domain.ItemID{1}, lister.calls)
	assert.Less(t, time.Since(started), 5*time.Second)
}
