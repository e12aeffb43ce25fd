// Package invoice holds the invoice draft model, its normalization and its business rules.
package invoice

import (
	"github.com/shopspring/decimal"
)

// VoucherType is the closed set of invoice categories the extractor may emit.
type VoucherType string

// Voucher types.
const (
	VoucherTypeA VoucherType = "Factura A"
	VoucherTypeB VoucherType = "Factura B"
	VoucherTypeC VoucherType = "Factura C"
)

// Authority voucher type codes.
const (
	VoucherCodeA = 1
	VoucherCodeB = 6
	VoucherCodeC = 11
)

// VoucherTypes lists every accepted voucher type in display order.
var VoucherTypes = []VoucherType{VoucherTypeA, VoucherTypeB, VoucherTypeC}

// Valid reports whether t belongs to the closed set.
func (t VoucherType) Valid() bool {
	switch t {
	case VoucherTypeA, VoucherTypeB, VoucherTypeC:
		return true
	}
	return false
}

// Code maps t to the authority's voucher type code. Unknown values map to
// Factura C, the category any registered taxpayer may issue.
func (t VoucherType) Code() int {
	switch t {
	case VoucherTypeA:
		return VoucherCodeA
	case VoucherTypeB:
		return VoucherCodeB
	default:
		return VoucherCodeC
	}
}

// Concept is what the invoice bills for.
type Concept string

// Concepts.
const (
	ConceptProducts Concept = "Productos"
	ConceptServices Concept = "Servicios"
	ConceptBoth     Concept = "Productos y Servicios"
)

// Authority concept codes.
const (
	ConceptCodeProducts = 1
	ConceptCodeServices = 2
	ConceptCodeBoth     = 3
)

// Concepts lists every accepted concept in display order.
var Concepts = []Concept{ConceptProducts, ConceptServices, ConceptBoth}

// Valid reports whether c belongs to the closed set.
func (c Concept) Valid() bool {
	switch c {
	case ConceptProducts, ConceptServices, ConceptBoth:
		return true
	}
	return false
}

// Code maps c to the authority's concept code. Unknown values map to
// Productos, which carries no service-period fields.
func (c Concept) Code() int {
	switch c {
	case ConceptServices:
		return ConceptCodeServices
	case ConceptBoth:
		return ConceptCodeBoth
	default:
		return ConceptCodeProducts
	}
}

// HasServicePeriod reports whether the authority requires service-period dates.
func (c Concept) HasServicePeriod() bool {
	code := c.Code()
	return code == ConceptCodeServices || code == ConceptCodeBoth
}

// PaymentCondition is how the customer pays.
type PaymentCondition string

// Payment conditions.
const (
	PaymentCash       PaymentCondition = "Contado"
	PaymentDebitCard  PaymentCondition = "Tarjeta de Débito"
	PaymentCreditCard PaymentCondition = "Tarjeta de Crédito"
	PaymentTransfer   PaymentCondition = "Transferencia"
)

// PaymentConditions lists every accepted payment condition in display order.
var PaymentConditions = []PaymentCondition{PaymentCash, PaymentDebitCard, PaymentCreditCard, PaymentTransfer}

// Valid reports whether p belongs to the closed set.
func (p PaymentCondition) Valid() bool {
	switch p {
	case PaymentCash, PaymentDebitCard, PaymentCreditCard, PaymentTransfer:
		return true
	}
	return false
}

// Business defaults applied when the description does not say otherwise.
const (
	DefaultPointOfSale      = 1
	DefaultVoucherType      = VoucherTypeC
	DefaultConcept          = ConceptProducts
	DefaultPaymentCondition = PaymentCash
)

// LineItem is one billed product or service.
type LineItem struct {
	Name      string          `json:"name" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal returns quantity times unit price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// PartialDraft is a draft as produced by the extractor; temporal fields may be absent.
type PartialDraft struct {
	PointOfSale      int              `json:"posNumber" validate:"gte=0"`
	Type             VoucherType      `json:"type"`
	Concept          Concept          `json:"concept"`
	PaymentCondition PaymentCondition `json:"paymentCondition"`
	Date             *Date            `json:"date"`
	Time             *string          `json:"time"`
	ScheduledFor     *Date            `json:"scheduledFor"`
	Items            []LineItem       `json:"items" validate:"required,min=1,dive"`
}

// Draft is a complete invoice draft ready for review or submission.
type Draft struct {
	PointOfSale      int              `json:"posNumber" validate:"gte=0"`
	Type             VoucherType      `json:"type"`
	Concept          Concept          `json:"concept"`
	PaymentCondition PaymentCondition `json:"paymentCondition"`
	Date             Date             `json:"date"`
	Time             string           `json:"time,omitempty"`
	ScheduledFor     *Date            `json:"scheduledFor,omitempty"`
	Items            []LineItem       `json:"items" validate:"required,min=1,dive"`
}

// Partial converts d back into its partial form; unset fields become nil.
func (d Draft) Partial() PartialDraft {
	p := PartialDraft{
		PointOfSale:      d.PointOfSale,
		Type:             d.Type,
		Concept:          d.Concept,
		PaymentCondition: d.PaymentCondition,
		Items:            d.Items,
	}
	if !d.Date.IsZero() {
		date := d.Date
		p.Date = &date
	}
	if d.Time != "" {
		clock := d.Time
		p.Time = &clock
	}
	if d.ScheduledFor != nil {
		scheduled := *d.ScheduledFor
		p.ScheduledFor = &scheduled
	}
	return p
}

// Total returns the invoice total recomputed from its items.
func (d Draft) Total() decimal.Decimal {
	return Total(d.Items)
}

// Total sums quantity*unitPrice over items, rounded to minor-unit precision.
func Total(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return sum.Round(2)
}
