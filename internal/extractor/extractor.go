// Package extractor turns a free-text invoice description into a partial
// invoice draft using a language model behind the Generator interface.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/facturia/facturia/internal/invoice"
	"github.com/facturia/facturia/internal/shared"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxConcurrency = 4
)

// Generator produces the raw JSON answer of a language model for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Extractor calls a Generator and parses its answer strictly.
type Extractor struct {
	gen      Generator
	sem      *semaphore.Weighted
	timeout  time.Duration
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxConcurrency bounds the number of simultaneous upstream calls.
func WithMaxConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLocation sets the business time zone used for the prompt's date context.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New constructs an extractor over gen.
func New(gen Generator, opts ...Option) *Extractor {
	e := &Extractor{
		gen:      gen,
		sem:      semaphore.NewWeighted(defaultMaxConcurrency),
		timeout:  defaultTimeout,
		location: time.UTC,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "extractor").Logger()
	return e
}

// Extract asks the model for a draft of text. It never returns a partial
// draft on failure.
func (e *Extractor) Extract(ctx context.Context, text string) (invoice.PartialDraft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return invoice.PartialDraft{}, fmt.Errorf("%w: text is required", shared.ErrInvalidRequest)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return invoice.PartialDraft{}, fmt.Errorf("%w: %v", shared.ErrExtractionFailed, err)
	}
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.gen.Generate(ctx, Prompt{
		System: systemInstruction(e.now().In(e.location)),
		Text:   text,
	})
	if err != nil {
		e.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("understanding service call failed")
		return invoice.PartialDraft{}, fmt.Errorf("%w: %v", shared.ErrExtractionFailed, err)
	}

	draft, err := Parse(raw)
	if err != nil {
		e.logger.Warn().Err(err).Int("response_length", len(raw)).Msg("understanding service returned non-conforming output")
		return invoice.PartialDraft{}, err
	}
	e.logger.Debug().Int("items", len(draft.Items)).Dur("elapsed", time.Since(start)).Msg("draft extracted")
	return draft, nil
}

type wireDraft struct {
	PosNumber        *int       `json:"posNumber"`
	Type             *string    `json:"type"`
	Concept          *string    `json:"concept"`
	PaymentCondition *string    `json:"paymentCondition"`
	Date             *string    `json:"date"`
	Time             *string    `json:"time"`
	ScheduledFor     *string    `json:"scheduledFor"`
	Items            []wireItem `json:"items"`
}

type wireItem struct {
	Name      string          `json:"name"`
	Quantity  json.RawMessage `json:"quantity"`
	UnitPrice json.RawMessage `json:"unitPrice"`
}

// amount decodes a bare JSON number. Quoted numbers are refused.
func amount(raw json.RawMessage) (*decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		return nil, fmt.Errorf("%s is a string, not a number", raw)
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var errEmptyOutput = errors.New("empty output")

// Parse decodes a model answer into a partial draft. Unknown fields,
// out-of-set values and malformed dates or items are rejected, never coerced.
func Parse(raw string) (invoice.PartialDraft, error) {
	fail := func(format string, args ...any) (invoice.PartialDraft, error) {
		return invoice.PartialDraft{}, fmt.Errorf("%w: "+format, append([]any{shared.ErrExtractionFailed}, args...)...)
	}

	body := stripFences(raw)
	if body == "" {
		return fail("%v", errEmptyOutput)
	}

	var w wireDraft
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return fail("decode: %v", err)
	}
	if dec.More() {
		return fail("trailing data after JSON object")
	}

	var d invoice.PartialDraft
	if w.PosNumber != nil {
		if *w.PosNumber <= 0 {
			return fail("posNumber %d must be positive", *w.PosNumber)
		}
		d.PointOfSale = *w.PosNumber
	}
	if v := value(w.Type); v != "" {
		if !invoice.VoucherType(v).Valid() {
			return fail("unknown type %q", v)
		}
		d.Type = invoice.VoucherType(v)
	}
	if v := value(w.Concept); v != "" {
		if !invoice.Concept(v).Valid() {
			return fail("unknown concept %q", v)
		}
		d.Concept = invoice.Concept(v)
	}
	if v := value(w.PaymentCondition); v != "" {
		if !invoice.PaymentCondition(v).Valid() {
			return fail("unknown paymentCondition %q", v)
		}
		d.PaymentCondition = invoice.PaymentCondition(v)
	}
	if v := value(w.Date); v != "" {
		date, err := invoice.ParseDate(v)
		if err != nil {
			return fail("date: %v", err)
		}
		d.Date = &date
	}
	if v := value(w.Time); v != "" {
		if !invoice.ValidClock(v) {
			return fail("time %q is not HH:MM", v)
		}
		d.Time = &v
	}
	if v := value(w.ScheduledFor); v != "" {
		date, err := invoice.ParseDate(v)
		if err != nil {
			return fail("scheduledFor: %v", err)
		}
		d.ScheduledFor = &date
	}

	if len(w.Items) == 0 {
		return fail("no items found")
	}
	d.Items = make([]invoice.LineItem, 0, len(w.Items))
	for i, item := range w.Items {
		quantity, err := amount(item.Quantity)
		if err != nil {
			return fail("item %d: quantity: %v", i+1, err)
		}
		price, err := amount(item.UnitPrice)
		if err != nil {
			return fail("item %d: unitPrice: %v", i+1, err)
		}
		name := CleanItemName(item.Name)
		switch {
		case name == "":
			return fail("item %d: empty name", i+1)
		case quantity == nil || !quantity.IsPositive():
			return fail("item %d: quantity must be positive", i+1)
		case price == nil || price.IsNegative():
			return fail("item %d: unit price must not be negative", i+1)
		}
		d.Items = append(d.Items, invoice.LineItem{Name: name, Quantity: *quantity, UnitPrice: *price})
	}
	return d, nil
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}
