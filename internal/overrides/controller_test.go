package overrides

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/models"
)

type changeLog struct {
	mu      sync.Mutex
	changes []models.PlatformOverride
}

func (l *changeLog) record(_ models.Platform, o models.PlatformOverride) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, o)
}

func (l *changeLog) last() models.PlatformOverride {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changes[len(l.changes)-1]
}

func newTestController(t *testing.T, platform models.Platform, fetcher *fakeFetcher) (*CardController, *manualClock, *recordingObserver, *changeLog) {
	t.Helper()
	clock := newManualClock()
	observer := &recordingObserver{}
	log := &changeLog{}
	c := NewCardController(ControllerConfig{
		Platform: platform,
		Fetcher:  fetcher,
		Clock:    clock,
		Debounce: DefaultDebounce,
		OnChange: log.record,
		Observer: observer,
	})
	t.Cleanup(c.Close)
	return c, clock, observer, log
}

// TestCardController_StartsDisabled tests the initial state
func TestCardController_StartsDisabled(t *testing.T) {
	c, _, _, _ := newTestController(t, models.PlatformOLX, newFakeFetcher())

	snap := c.Snapshot()
	assert.Equal(t, StateDisabled, snap.State)
	assert.False(t, snap.Enabled)
	assert.ErrorIs(t, c.SetCategory(testCreds, "123"), ErrPlatformDisabled)
}

// TestCardController_DebounceCoalescesRapidEdits tests that edits inside the
// quiet period produce exactly one fetch for the last value
func TestCardController_DebounceCoalescesRapidEdits(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("123", fetchResult{schema: twoRequiredOneOptional()})
	c, clock, observer, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "1"))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, c.SetCategory(testCreds, "12"))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, c.SetCategory(testCreds, "123"))

	assert.Equal(t, StateLoading, c.Snapshot().State)
	clock.Advance(499 * time.Millisecond)
	c.inflight.Wait()
	assert.Empty(t, fetcher.Calls(), "No fetch should happen before the window settles")
	assert.Empty(t, c.Snapshot().DebouncedCategoryID)

	clock.Advance(time.Millisecond)
	c.inflight.Wait()

	calls := fetcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "123", calls[0].CategoryID)
	assert.Equal(t, "seller-token", calls[0].Token)

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "123", snap.DebouncedCategoryID)
	assert.Len(t, snap.Schema, 3)
	assert.Equal(t, []FetchOutcome{FetchSuccess}, observer.Outcomes())
}

// TestCardController_SupersededResponseIsDiscarded tests that a slow response
// for an old category never overwrites the newer one
func TestCardController_SupersededResponseIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	fetcher := newFakeFetcher()
	fetcher.On("A", fetchResult{schema: models.AttributeFieldSchema{{Key: "old", Required: true}}, gate: gate})
	fetcher.On("B", fetchResult{schema: models.AttributeFieldSchema{{Key: "new", Required: true}}})
	c, clock, observer, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "A"))
	clock.Advance(DefaultDebounce)
	require.NoError(t, c.SetCategory(testCreds, "B"))
	clock.Advance(DefaultDebounce)

	assert.Eventually(t, func() bool {
		return c.Snapshot().State == StateReady
	}, time.Second, 5*time.Millisecond)

	close(gate)
	c.inflight.Wait()

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "B", snap.CategoryID)
	require.Len(t, snap.Schema, 1)
	assert.Equal(t, "new", snap.Schema[0].Key)
	assert.Equal(t, 1, observer.Stale())
}

// TestCardController_DisableClearsAndReenableStartsEmpty tests toggling off
func TestCardController_DisableClearsAndReenableStartsEmpty(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("123", fetchResult{schema: twoRequiredOneOptional()})
	c, clock, _, log := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "123"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()
	require.NoError(t, c.SetValue("brand", "Acme"))

	c.SetEnabled(false)
	snap := c.Snapshot()
	assert.Equal(t, StateDisabled, snap.State)
	assert.Empty(t, snap.CategoryID)
	assert.Empty(t, snap.Values)
	assert.Nil(t, snap.Schema)
	assert.False(t, log.last().IsCustomized())

	c.SetEnabled(true)
	snap = c.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Empty(t, snap.CategoryID)
	assert.Empty(t, snap.Values)
}

// TestCardController_DisableCancelsPendingDebounce tests that a toggle off
// inside the debounce window prevents the fetch
func TestCardController_DisableCancelsPendingDebounce(t *testing.T) {
	fetcher := newFakeFetcher()
	c, clock, _, _ := newTestController(t, models.PlatformEbay, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "9355"))
	c.SetEnabled(false)
	clock.Advance(time.Second)
	c.inflight.Wait()

	assert.Empty(t, fetcher.Calls())
	assert.Equal(t, StateDisabled, c.Snapshot().State)
}

// TestCardController_DisableDiscardsInFlightResponse tests that a response
// arriving after a toggle off is dropped
func TestCardController_DisableDiscardsInFlightResponse(t *testing.T) {
	gate := make(chan struct{})
	fetcher := newFakeFetcher()
	fetcher.On("123", fetchResult{schema: twoRequiredOneOptional(), gate: gate})
	c, clock, observer, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "123"))
	clock.Advance(DefaultDebounce)
	c.SetEnabled(false)
	close(gate)
	c.inflight.Wait()

	snap := c.Snapshot()
	assert.Equal(t, StateDisabled, snap.State)
	assert.Nil(t, snap.Schema)
	assert.Equal(t, 1, observer.Stale())
}

// TestCardController_ClearingCategoryReturnsToEmpty tests clearing the id
func TestCardController_ClearingCategoryReturnsToEmpty(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("123", fetchResult{schema: twoRequiredOneOptional()})
	c, clock, _, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "123"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()
	require.Equal(t, StateReady, c.Snapshot().State)

	require.NoError(t, c.SetCategory(testCreds, "   "))
	clock.Advance(time.Second)
	c.inflight.Wait()

	snap := c.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Nil(t, snap.Schema)
	assert.Empty(t, snap.DebouncedCategoryID)
	assert.Len(t, fetcher.Calls(), 1)
}

// TestCardController_AutoEnablesSavedCategory tests loading a saved override
func TestCardController_AutoEnablesSavedCategory(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("555", fetchResult{schema: twoRequiredOneOptional()})
	c, _, _, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.LoadSaved(testCreds, models.PlatformOverride{
		CategoryID:      "555",
		AttributeValues: map[string]any{"brand": "Acme"},
	})
	c.inflight.Wait()

	snap := c.Snapshot()
	assert.True(t, snap.Enabled)
	assert.True(t, snap.Expanded)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "555", snap.DebouncedCategoryID)
	assert.Equal(t, "Acme", snap.Values["brand"])
	require.Len(t, fetcher.Calls(), 1, "Saved category should be fetched without waiting for the debounce")
}

// TestCardController_LoadSavedWithoutCategoryStaysDisabled tests the fallback case
func TestCardController_LoadSavedWithoutCategoryStaysDisabled(t *testing.T) {
	fetcher := newFakeFetcher()
	c, _, _, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.LoadSaved(testCreds, models.PlatformOverride{AttributeValues: map[string]any{"brand": "Acme"}})
	c.inflight.Wait()

	assert.Equal(t, StateDisabled, c.Snapshot().State)
	assert.Empty(t, fetcher.Calls())
}

// TestCardController_EmptySchemaMessage tests a category without attributes
func TestCardController_EmptySchemaMessage(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("12345", fetchResult{schema: models.AttributeFieldSchema{}})
	c, clock, observer, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "12345"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()

	form := c.Form()
	assert.Equal(t, StateReady, form.State)
	assert.Equal(t, NoRequiredAttributesMessage, form.Message)
	assert.Empty(t, form.Fields)
	assert.Equal(t, []FetchOutcome{FetchEmpty}, observer.Outcomes())
}

// TestCardController_OptionalOnlySchemaShowsMessage tests a category whose
// attributes are all optional
func TestCardController_OptionalOnlySchemaShowsMessage(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("321", fetchResult{schema: models.AttributeFieldSchema{
		{Key: "color", Label: "Color", Type: models.FieldTypeText},
	}})
	c, clock, _, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "321"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()

	form := c.Form()
	assert.Equal(t, StateReady, form.State)
	assert.Equal(t, NoRequiredAttributesMessage, form.Message)
	assert.Empty(t, form.Fields)
	assert.Equal(t, 1, form.OptionalCount)

	require.NoError(t, c.SetOptionalExpanded(true))
	form = c.Form()
	require.Len(t, form.Fields, 1)
	assert.Equal(t, "color", form.Fields[0].Key)
}

// TestCardController_FetchErrorKeepsValues tests that a failed lookup is local
// and recoverable
func TestCardController_FetchErrorKeepsValues(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("555", fetchResult{err: &client.APIError{StatusCode: 500, Message: "boom"}})
	c, _, observer, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.LoadSaved(testCreds, models.PlatformOverride{
		CategoryID:      "555",
		AttributeValues: map[string]any{"brand": "Acme"},
	})
	c.inflight.Wait()

	snap := c.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.NotEmpty(t, snap.Error)
	assert.Equal(t, "Acme", snap.Values["brand"], "Values must survive a failed fetch")
	assert.Equal(t, snap.Error, c.Form().Message)
	assert.Equal(t, []FetchOutcome{FetchError}, observer.Outcomes())

	fetcher.On("555", fetchResult{schema: twoRequiredOneOptional()})
	require.NoError(t, c.Retry(testCreds))
	c.inflight.Wait()

	snap = c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, "Acme", snap.Values["brand"])
}

// TestCardController_ErrorMessages tests the inline messages per failure kind
func TestCardController_ErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "unauthorized", err: &client.APIError{StatusCode: 401}, contains: "sign in"},
		{name: "not found", err: &client.APIError{StatusCode: 404}, contains: "was not found"},
		{name: "server error", err: &client.APIError{StatusCode: 502}, contains: "Failed to load attributes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			fetcher.On("1", fetchResult{err: tt.err})
			c, clock, _, _ := newTestController(t, models.PlatformEbay, fetcher)

			c.SetEnabled(true)
			require.NoError(t, c.SetCategory(testCreds, "1"))
			clock.Advance(DefaultDebounce)
			c.inflight.Wait()

			assert.Contains(t, c.Snapshot().Error, tt.contains)
		})
	}
}

// TestCardController_ReenteringSameCategoryRefetches tests recovery by edit
func TestCardController_ReenteringSameCategoryRefetches(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("7", fetchResult{err: &client.APIError{StatusCode: 500}})
	c, clock, _, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "7"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()
	require.Equal(t, StateError, c.Snapshot().State)

	fetcher.On("7", fetchResult{schema: twoRequiredOneOptional()})
	require.NoError(t, c.SetCategory(testCreds, "7"))
	assert.Equal(t, StateLoading, c.Snapshot().State)
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()

	assert.Equal(t, StateReady, c.Snapshot().State)
	assert.Len(t, fetcher.Calls(), 2)
}

// TestCardController_SetValue tests value validation
func TestCardController_SetValue(t *testing.T) {
	fetcher := newFakeFetcher()
	schema := twoRequiredOneOptional()
	schema = append(schema, models.AttributeFieldDefinition{
		Key: "colors", Type: models.FieldTypeMultiSelect,
		Options: []models.FieldOption{{Value: "red"}, {Value: "blue"}},
	})
	fetcher.On("1", fetchResult{schema: schema})
	c, clock, _, log := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "1"))
	assert.ErrorIs(t, c.SetValue("brand", "Acme"), ErrSchemaNotReady)

	clock.Advance(DefaultDebounce)
	c.inflight.Wait()

	require.NoError(t, c.SetValue("brand", "Acme"))
	require.NoError(t, c.SetValue("size", 42))
	require.NoError(t, c.SetValue("colors", []any{"red", "blue"}))
	assert.ErrorIs(t, c.SetValue("unknown", "x"), ErrUnknownField)
	assert.ErrorIs(t, c.SetValue("brand", map[string]any{"a": 1}), ErrInvalidValue)
	assert.ErrorIs(t, c.SetValue("condition", []any{"new", "used"}), ErrInvalidValue)

	last := log.last()
	assert.Equal(t, "1", last.CategoryID)
	assert.Equal(t, "Acme", last.AttributeValues["brand"])
	assert.Equal(t, float64(42), last.AttributeValues["size"])
	assert.Equal(t, []any{"red", "blue"}, last.AttributeValues["colors"])

	require.NoError(t, c.SetValue("brand", nil))
	_, exists := log.last().AttributeValues["brand"]
	assert.False(t, exists, "nil should remove the value")
}

// TestCardController_StaleKeysKeptButNotRendered tests a category switch
func TestCardController_StaleKeysKeptButNotRendered(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("1", fetchResult{schema: twoRequiredOneOptional()})
	fetcher.On("2", fetchResult{schema: models.AttributeFieldSchema{{Key: "material", Required: true}}})
	c, clock, _, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "1"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()
	require.NoError(t, c.SetValue("brand", "Acme"))

	require.NoError(t, c.SetCategory(testCreds, "2"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()

	assert.Equal(t, "Acme", c.Snapshot().Values["brand"])
	form := c.Form()
	require.Len(t, form.Fields, 1)
	assert.Equal(t, "material", form.Fields[0].Key)
}

// TestCardController_OptionalToggle tests the collapsed optional block
func TestCardController_OptionalToggle(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.On("1", fetchResult{schema: twoRequiredOneOptional()})
	c, clock, _, _ := newTestController(t, models.PlatformOLX, fetcher)

	c.SetEnabled(true)
	require.NoError(t, c.SetCategory(testCreds, "1"))
	clock.Advance(DefaultDebounce)
	c.inflight.Wait()

	form := c.Form()
	assert.Len(t, form.Fields, 2)
	assert.Equal(t, 1, form.OptionalCount)

	require.NoError(t, c.SetOptionalExpanded(true))
	assert.Len(t, c.Form().Fields, 3)
}

// TestCardController_RetryWithoutCategory tests Retry preconditions
func TestCardController_RetryWithoutCategory(t *testing.T) {
	c, _, _, _ := newTestController(t, models.PlatformOLX, newFakeFetcher())

	assert.ErrorIs(t, c.Retry(testCreds), ErrPlatformDisabled)
	c.SetEnabled(true)
	assert.ErrorIs(t, c.Retry(testCreds), ErrNoCategory)
}
