package overrides

import (
	"context"
	"sort"
	"sync"
	"time"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/models"
)

// manualClock fires timers only when the test advances it
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due callbacks in order, outside the lock
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fetchCall struct {
	Platform   models.Platform
	CategoryID string
	Token      string
}

type fetchResult struct {
	schema models.AttributeFieldSchema
	err    error
	// gate, when set, blocks the fetch until closed
	gate chan struct{}
}

// fakeFetcher answers schema lookups from a per-category table
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	results map[string]fetchResult
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: make(map[string]fetchResult)}
}

func (f *fakeFetcher) On(categoryID string, result fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[categoryID] = result
}

func (f *fakeFetcher) GetAttributes(ctx context.Context, creds client.Credentials, platform models.Platform, categoryID string, opts client.AttributeOptions) (models.AttributeFieldSchema, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Platform: platform, CategoryID: categoryID, Token: creds.Token})
	result := f.results[categoryID]
	f.mu.Unlock()

	if result.gate != nil {
		select {
		case <-result.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result.schema, result.err
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []FetchOutcome
	stale    int
	saves    []SaveOutcome
}

func (o *recordingObserver) FetchCompleted(platform models.Platform, outcome FetchOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) StaleResponseDiscarded(platform models.Platform) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func (o *recordingObserver) SaveCompleted(outcome SaveOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saves = append(o.saves, outcome)
}

func (o *recordingObserver) Stale() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stale
}

// fakeBackend serves GetItem and UpdateItem from memory
type fakeBackend struct {
	mu        sync.Mutex
	listing   models.Listing
	updateErr error
	patches   []models.UpdateListingRequest
}

func (b *fakeBackend) GetItem(ctx context.Context, creds client.Credentials, listingID string) (*models.Listing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if listingID != b.listing.UUID {
		return nil, &client.APIError{StatusCode: 404, Message: "Not found."}
	}
	listing := b.listing
	return &listing, nil
}

func (b *fakeBackend) UpdateItem(ctx context.Context, creds client.Credentials, listingID string, update models.UpdateListingRequest) (*models.Listing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patches = append(b.patches, update)
	if b.updateErr != nil {
		return nil, b.updateErr
	}
	b.listing.PlatformListingOverrides = update.PlatformListingOverrides
	listing := b.listing
	return &listing, nil
}

func (b *fakeBackend) LastPatch() models.UpdateListingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.patches[len(b.patches)-1]
}

var testCreds = client.Credentials{Token: "seller-token"}

func twoRequiredOneOptional() models.AttributeFieldSchema {
	return models.AttributeFieldSchema{
		{Key: "brand", Label: "Brand", Required: true, Type: models.FieldTypeText},
		{Key: "condition", Label: "Condition", Required: true, Type: models.FieldTypeSelect, Options: []models.FieldOption{
			{Value: "new", Label: "New", Description: "Unused, with tags"},
			{Value: "used", Label: "Used"},
		}},
		{Key: "size", Label: "Size", Required: false, Type: models.FieldTypeNumber},
	}
}

func (o *recordingObserver) Outcomes() []FetchOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]FetchOutcome(nil), o.outcomes...)
}
