package authority

import (
	"context"
	"fmt"
	"strings"

	"github.com/facturia/facturia/internal/invoice"
	"github.com/facturia/facturia/internal/sequencer"
)

// Fixed voucher fields for invoices to final consumers in pesos.
const (
	docTypeFinalConsumer = 99
	currencyPesos        = "PES"
	recordsPerRequest    = 1
)

// VoucherRequest is one voucher as the authority's FECAESolicitar expects it.
type VoucherRequest struct {
	CantReg      int     `json:"CantReg"`
	PtoVta       int     `json:"PtoVta"`
	CbteTipo     int     `json:"CbteTipo"`
	Concepto     int     `json:"Concepto"`
	DocTipo      int     `json:"DocTipo"`
	DocNro       int64   `json:"DocNro"`
	CbteDesde    int64   `json:"CbteDesde"`
	CbteHasta    int64   `json:"CbteHasta"`
	CbteFch      string  `json:"CbteFch"`
	ImpTotal     float64 `json:"ImpTotal"`
	ImpTotConc   float64 `json:"ImpTotConc"`
	ImpNeto      float64 `json:"ImpNeto"`
	ImpOpEx      float64 `json:"ImpOpEx"`
	ImpIVA       float64 `json:"ImpIVA"`
	ImpTrib      float64 `json:"ImpTrib"`
	FchServDesde string  `json:"FchServDesde,omitempty"`
	FchServHasta string  `json:"FchServHasta,omitempty"`
	FchVtoPago   string  `json:"FchVtoPago,omitempty"`
	MonID        string  `json:"MonId"`
	MonCotiz     float64 `json:"MonCotiz"`
}

// Authorization is the authority's approval of one voucher.
type Authorization struct {
	Code          string
	Expiry        invoice.Date
	VoucherNumber int64
	Observations  []Message
}

// BuildVoucherRequest maps a complete draft and its reserved number onto the
// authority payload. Amounts are recomputed from the items.
func BuildVoucherRequest(d invoice.Draft, number int64) VoucherRequest {
	total := d.Total().InexactFloat64()
	issued := d.Date.Compact()

	req := VoucherRequest{
		CantReg:   recordsPerRequest,
		PtoVta:    d.PointOfSale,
		CbteTipo:  d.Type.Code(),
		Concepto:  d.Concept.Code(),
		DocTipo:   docTypeFinalConsumer,
		DocNro:    0,
		CbteDesde: number,
		CbteHasta: number,
		CbteFch:   issued,
		ImpTotal:  total,
		ImpNeto:   total,
		MonID:     currencyPesos,
		MonCotiz:  1,
	}
	if d.Concept.HasServicePeriod() {
		req.FchServDesde = issued
		req.FchServHasta = issued
		req.FchVtoPago = issued
	}
	return req
}

// Sequence hands out the next voucher number of a reserved sequence.
type Sequence interface {
	Key() sequencer.Key
	NextVoucherNumber(ctx context.Context, src sequencer.LastNumberSource) (int64, error)
}

// Submit reads the next number of seq from the authority, builds the voucher
// and asks the authority to authorize it. It never retries.
func Submit(ctx context.Context, gw Gateway, d invoice.Draft, seq Sequence) (Authorization, error) {
	key := seq.Key()
	if key.PointOfSale != d.PointOfSale || key.VoucherType != d.Type.Code() {
		return Authorization{}, fmt.Errorf("authority: sequence %s does not match draft", key)
	}
	number, err := seq.NextVoucherNumber(ctx, gw)
	if err != nil {
		return Authorization{}, err
	}
	return gw.CreateVoucher(ctx, BuildVoucherRequest(d, number))
}

func parseExpiry(s string) (invoice.Date, error) {
	s = strings.TrimSpace(s)
	if len(s) == len("20060102") {
		return invoice.ParseCompactDate(s)
	}
	return invoice.ParseDate(s)
}
