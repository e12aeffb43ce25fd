package invoice

import (
	"strings"
	"time"
)

// placeholderMaxAgeDays bounds how old a date from an earlier calendar year may
// be before it is treated as a hallucinated placeholder rather than a real
// back-dated invoice.
const placeholderMaxAgeDays = 31

// IsPlaceholderDate reports whether d is missing or looks like a stale year the
// extractor invented.
func IsPlaceholderDate(d, today Date) bool {
	if d.IsZero() {
		return true
	}
	return d.Year < today.Year && d.DaysUntil(today) > placeholderMaxAgeDays
}

// Normalize completes a partial draft from the local clock and business
// defaults. It is pure and idempotent: normalizing a normalized draft with the
// same now returns it unchanged. scheduledFor is never altered. Placeholder
// dates and malformed times are replaced with now.
func Normalize(p PartialDraft, now time.Time) Draft {
	d := Complete(p, now)
	today := DateOf(now)
	if p.Date != nil && IsPlaceholderDate(*p.Date, today) {
		d.Date = today
	}
	if p.Time != nil && !ValidClock(*p.Time) {
		d.Time = ClockOf(now)
	}
	return d
}

// Complete fills only what an approved draft leaves out: a nil date or time
// and empty business fields. Explicit values are kept as given, so a
// malformed time is left for Validate to reject.
func Complete(p PartialDraft, now time.Time) Draft {
	d := Draft{
		PointOfSale:      p.PointOfSale,
		Type:             p.Type,
		Concept:          p.Concept,
		PaymentCondition: p.PaymentCondition,
		Date:             DateOf(now),
		Time:             ClockOf(now),
	}

	if p.Date != nil && !p.Date.IsZero() {
		d.Date = *p.Date
	}
	if p.Time != nil && *p.Time != "" {
		d.Time = *p.Time
	}
	if p.ScheduledFor != nil {
		scheduled := *p.ScheduledFor
		d.ScheduledFor = &scheduled
	}

	if d.PointOfSale <= 0 {
		d.PointOfSale = DefaultPointOfSale
	}
	if d.Type == "" {
		d.Type = DefaultVoucherType
	}
	if d.Concept == "" {
		d.Concept = DefaultConcept
	}
	if d.PaymentCondition == "" {
		d.PaymentCondition = DefaultPaymentCondition
	}

	if p.Items != nil {
		d.Items = make([]LineItem, len(p.Items))
		for i, item := range p.Items {
			d.Items[i] = LineItem{
				Name:      strings.TrimSpace(item.Name),
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice.Round(2),
			}
		}
	}
	return d
}
