package overrides

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/models"
)

// DefaultDebounce is the quiet period before a category edit triggers a fetch
const DefaultDebounce = 500 * time.Millisecond

// State is the lifecycle state of a platform override card
type State string

const (
	StateDisabled State = "disabled"
	StateEmpty    State = "enabled_empty"
	StateLoading  State = "enabled_loading"
	StateReady    State = "enabled_ready"
	StateError    State = "enabled_error"
)

// FetchOutcome classifies a completed schema lookup
type FetchOutcome string

const (
	FetchSuccess FetchOutcome = "success"
	FetchEmpty   FetchOutcome = "empty"
	FetchError   FetchOutcome = "error"
)

// AttributeFetcher resolves a platform+category pair to its attribute schema
type AttributeFetcher interface {
	GetAttributes(ctx context.Context, creds client.Credentials, platform models.Platform, categoryID string, opts client.AttributeOptions) (models.AttributeFieldSchema, error)
}

// FetchObserver is notified about schema lookups
type FetchObserver interface {
	FetchCompleted(platform models.Platform, outcome FetchOutcome)
	StaleResponseDiscarded(platform models.Platform)
}

// ControllerConfig configures a CardController
type ControllerConfig struct {
	Platform         models.Platform
	Fetcher          AttributeFetcher
	Clock            Clock
	Debounce         time.Duration
	AttributeOptions client.AttributeOptions
	// OnChange receives every change of the platform's override
	OnChange func(models.Platform, models.PlatformOverride)
	Observer FetchObserver
}

// CardSnapshot is a read-only copy of a controller's state
type CardSnapshot struct {
	Platform            models.Platform             `json:"platform"`
	State               State                       `json:"state"`
	Enabled             bool                        `json:"enabled"`
	Expanded            bool                        `json:"expanded"`
	CategoryID          string                      `json:"categoryId"`
	DebouncedCategoryID string                      `json:"debouncedCategoryId"`
	Values              map[string]any              `json:"attributeValues"`
	Schema              models.AttributeFieldSchema `json:"schema,omitempty"`
	Error               string                      `json:"error,omitempty"`
	ShowOptional        bool                        `json:"showOptional"`
}

// CardController owns one platform's override, its schema and the debounced
// category id. Schema fetches are guarded by a generation counter: a result
// is applied only if no edit, toggle or retry happened since it was issued.
type CardController struct {
	cfg ControllerConfig

	mu                sync.Mutex
	state             State
	expanded          bool
	showOptional      bool
	override          models.PlatformOverride
	debouncedCategory string
	schema            models.AttributeFieldSchema
	errMsg            string
	generation        uint64
	creds             client.Credentials

	debounce *debouncer
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewCardController creates a disabled controller for cfg.Platform
func NewCardController(cfg ControllerConfig) *CardController {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CardController{
		cfg:      cfg,
		state:    StateDisabled,
		debounce: newDebouncer(cfg.Clock, cfg.Debounce),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Platform returns the platform this controller edits
func (c *CardController) Platform() models.Platform {
	return c.cfg.Platform
}

// LoadSaved seeds the controller from a persisted override. A saved category
// enables and expands the card and fetches its schema right away.
func (c *CardController) LoadSaved(creds client.Credentials, saved models.PlatformOverride) {
	c.mu.Lock()
	if !saved.IsCustomized() {
		c.mu.Unlock()
		return
	}

	c.creds = creds
	c.override = saved.Clone()
	c.override.CategoryID = strings.TrimSpace(saved.CategoryID)
	if c.override.AttributeValues == nil {
		c.override.AttributeValues = make(map[string]any)
	}
	c.expanded = true
	c.debouncedCategory = c.override.CategoryID
	c.state = StateLoading
	c.generation++
	token, categoryID := c.generation, c.override.CategoryID
	c.mu.Unlock()

	slog.Debug("Auto-enabled platform override", "platform", c.cfg.Platform, "category_id", categoryID)
	c.spawnFetch(creds, token, categoryID)
}

// SetEnabled toggles "customize for platform". Turning it off clears the
// category and values and drops any pending or in-flight fetch.
func (c *CardController) SetEnabled(enabled bool) {
	c.mu.Lock()
	if enabled == (c.state != StateDisabled) {
		c.mu.Unlock()
		return
	}

	c.debounce.Cancel()
	c.generation++
	c.override = models.PlatformOverride{}
	c.debouncedCategory = ""
	c.schema = nil
	c.errMsg = ""
	c.showOptional = false
	if enabled {
		c.state = StateEmpty
		c.expanded = true
		c.override.AttributeValues = make(map[string]any)
	} else {
		c.state = StateDisabled
		c.expanded = false
	}
	c.notify(c.override.Clone())
	c.mu.Unlock()

	slog.Debug("Platform override toggled", "platform", c.cfg.Platform, "enabled", enabled)
}

// SetCategory records a category edit. A non-empty id starts the trailing
// debounce; only the value present when it settles is fetched. An empty id
// returns the card to the empty state.
func (c *CardController) SetCategory(creds client.Credentials, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)

	c.mu.Lock()
	if c.state == StateDisabled {
		c.mu.Unlock()
		return ErrPlatformDisabled
	}

	c.creds = creds
	c.override.CategoryID = categoryID
	c.generation++
	token := c.generation

	if categoryID == "" {
		c.debounce.Cancel()
		c.state = StateEmpty
		c.debouncedCategory = ""
		c.schema = nil
		c.errMsg = ""
	} else {
		c.state = StateLoading
		c.debounce.Trigger(func() { c.settle(token) })
	}
	c.notify(c.override.Clone())
	c.mu.Unlock()

	return nil
}

// Retry re-issues the schema fetch for the current category immediately
func (c *CardController) Retry(creds client.Credentials) error {
	c.mu.Lock()
	if c.state == StateDisabled {
		c.mu.Unlock()
		return ErrPlatformDisabled
	}
	if c.override.CategoryID == "" {
		c.mu.Unlock()
		return ErrNoCategory
	}

	c.debounce.Cancel()
	c.creds = creds
	c.generation++
	c.state = StateLoading
	c.debouncedCategory = c.override.CategoryID
	token, categoryID := c.generation, c.override.CategoryID
	c.mu.Unlock()

	c.spawnFetch(creds, token, categoryID)
	return nil
}

// SetValue stores one attribute value. A nil value removes the key.
func (c *CardController) SetValue(key string, value any) error {
	c.mu.Lock()
	if c.state == StateDisabled {
		c.mu.Unlock()
		return ErrPlatformDisabled
	}
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrSchemaNotReady
	}

	def, ok := c.fieldLocked(key)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}

	if value == nil {
		delete(c.override.AttributeValues, key)
	} else {
		normalized, err := models.NormalizeAttributeValue(value)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		if _, isList := normalized.([]any); isList && def.Type != models.FieldTypeMultiSelect {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s accepts a single value", ErrInvalidValue, key)
		}
		if c.override.AttributeValues == nil {
			c.override.AttributeValues = make(map[string]any)
		}
		c.override.AttributeValues[key] = normalized
	}
	c.notify(c.override.Clone())
	c.mu.Unlock()

	return nil
}

// SetOptionalExpanded shows or hides the optional fields
func (c *CardController) SetOptionalExpanded(expanded bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisabled {
		return ErrPlatformDisabled
	}
	c.showOptional = expanded
	return nil
}

// Snapshot returns a copy of the controller state
func (c *CardController) Snapshot() CardSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	override := c.override.Clone()
	if override.AttributeValues == nil {
		override.AttributeValues = make(map[string]any)
	}
	return CardSnapshot{
		Platform:            c.cfg.Platform,
		State:               c.state,
		Enabled:             c.state != StateDisabled,
		Expanded:            c.expanded,
		CategoryID:          override.CategoryID,
		DebouncedCategoryID: c.debouncedCategory,
		Values:              override.AttributeValues,
		Schema:              append(models.AttributeFieldSchema(nil), c.schema...),
		Error:               c.errMsg,
		ShowOptional:        c.showOptional,
	}
}

// Form renders the card's attribute form for its current state
func (c *CardController) Form() FormView {
	c.mu.Lock()
	defer c.mu.Unlock()

	var view FormView
	if c.state == StateReady {
		view = RenderFields(c.schema, c.override.AttributeValues, RenderOptions{ShowOptional: c.showOptional})
		if view.OptionalCount == len(c.schema) {
			view.Message = NoRequiredAttributesMessage
		}
	} else {
		view = FormView{Fields: []FieldView{}, ShowOptional: c.showOptional}
	}
	if c.state == StateError {
		view.Message = c.errMsg
	}
	view.State = c.state
	return view
}

// Close stops the debounce timer, cancels in-flight fetches and waits for them
func (c *CardController) Close() {
	c.mu.Lock()
	c.debounce.Cancel()
	c.generation++
	c.mu.Unlock()

	c.cancel()
	c.inflight.Wait()
}

// settle runs when the debounce window closes
func (c *CardController) settle(token uint64) {
	c.mu.Lock()
	if token != c.generation || c.state == StateDisabled {
		c.mu.Unlock()
		return
	}
	c.debouncedCategory = c.override.CategoryID
	creds, categoryID := c.creds, c.override.CategoryID
	c.mu.Unlock()

	c.spawnFetch(creds, token, categoryID)
}

func (c *CardController) spawnFetch(creds client.Credentials, token uint64, categoryID string) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.fetch(creds, token, categoryID)
	}()
}

func (c *CardController) fetch(creds client.Credentials, token uint64, categoryID string) {
	schema, err := c.cfg.Fetcher.GetAttributes(c.ctx, creds, c.cfg.Platform, categoryID, c.cfg.AttributeOptions)

	c.mu.Lock()
	if token != c.generation || c.state == StateDisabled {
		c.mu.Unlock()
		slog.Debug("Discarded stale attribute response", "platform", c.cfg.Platform, "category_id", categoryID)
		if c.cfg.Observer != nil {
			c.cfg.Observer.StaleResponseDiscarded(c.cfg.Platform)
		}
		return
	}

	outcome := FetchSuccess
	if err != nil {
		outcome = FetchError
		c.state = StateError
		c.schema = nil
		c.errMsg = fetchErrorMessage(c.cfg.Platform.String(), categoryID, err)
	} else {
		if len(schema) == 0 {
			outcome = FetchEmpty
		}
		c.state = StateReady
		c.schema = schema
		c.errMsg = ""
	}
	c.mu.Unlock()

	if err != nil {
		slog.Warn("Failed to fetch attribute schema", "platform", c.cfg.Platform, "category_id", categoryID, "error", err)
	} else {
		slog.Debug("Attribute schema loaded", "platform", c.cfg.Platform, "category_id", categoryID, "fields", len(schema))
	}
	if c.cfg.Observer != nil {
		c.cfg.Observer.FetchCompleted(c.cfg.Platform, outcome)
	}
}

func (c *CardController) fieldLocked(key string) (models.AttributeFieldDefinition, bool) {
	for _, def := range c.schema {
		if def.Key == key {
			return def, true
		}
	}
	return models.AttributeFieldDefinition{}, false
}

// notify runs under c.mu so the owner sees changes in order
func (c *CardController) notify(override models.PlatformOverride) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.cfg.Platform, override)
	}
}
