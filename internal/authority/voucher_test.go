package authority

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/facturia/facturia/internal/invoice"
	"github.com/facturia/facturia/internal/sequencer"
)

func lavandinaDraft(concept invoice.Concept) invoice.Draft {
	return invoice.Draft{
		PointOfSale:      1,
		Type:             invoice.VoucherTypeC,
		Concept:          concept,
		PaymentCondition: invoice.PaymentCash,
		Date:             invoice.Date{Year: 2025, Month: time.June, Day: 10},
		Time:             "14:07",
		Items: []invoice.LineItem{
			{Name: "Lavandina", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(800)},
		},
	}
}

func TestBuildVoucherRequestProducts(t *testing.T) {
	req := BuildVoucherRequest(lavandinaDraft(invoice.ConceptProducts), 42)

	require.Equal(t, VoucherRequest{
		CantReg:   1,
		PtoVta:    1,
		CbteTipo:  11,
		Concepto:  1,
		DocTipo:   99,
		DocNro:    0,
		CbteDesde: 42,
		CbteHasta: 42,
		CbteFch:   "20250610",
		ImpTotal:  1600,
		ImpNeto:   1600,
		MonID:     "PES",
		MonCotiz:  1,
	}, req)
}

func TestBuildVoucherRequestServicePeriod(t *testing.T) {
	for _, concept := range []invoice.Concept{invoice.ConceptServices, invoice.ConceptBoth} {
		req := BuildVoucherRequest(lavandinaDraft(concept), 7)
		require.Equal(t, concept.Code(), req.Concepto)
		require.Equal(t, req.CbteFch, req.FchServDesde)
		require.Equal(t, req.CbteFch, req.FchServHasta)
		require.Equal(t, req.CbteFch, req.FchVtoPago)
	}
}

func TestBuildVoucherRequestTotalsFromItems(t *testing.T) {
	d := lavandinaDraft(invoice.ConceptProducts)
	d.Type = invoice.VoucherTypeB
	d.Items = append(d.Items, invoice.LineItem{Name: "Esponja", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("199.99")})

	req := BuildVoucherRequest(d, 1)
	require.Equal(t, 6, req.CbteTipo)
	require.InDelta(t, 2199.97, req.ImpTotal, 0.0001)
	require.Equal(t, req.ImpTotal, req.ImpNeto)
	require.Zero(t, req.ImpIVA)
	require.Zero(t, req.ImpTrib)
	require.Zero(t, req.ImpOpEx)
	require.Zero(t, req.ImpTotConc)
}

type stubGateway struct {
	last     int64
	received []VoucherRequest
}

func (s *stubGateway) LastVoucher(context.Context, int, int) (int64, error) {
	return s.last, nil
}

func (s *stubGateway) CreateVoucher(_ context.Context, req VoucherRequest) (Authorization, error) {
	s.received = append(s.received, req)
	s.last = req.CbteDesde
	expiry, _ := invoice.ParseDate("2025-06-20")
	return Authorization{Code: "XYZ", Expiry: expiry, VoucherNumber: req.CbteDesde}, nil
}

func (s *stubGateway) Close() {}

func TestSubmitUsesNextNumber(t *testing.T) {
	seq := sequencer.New(sequencer.NewMemoryLocker(), nil, zerolog.Nop())
	key := sequencer.Key{AccountID: testAccount, PointOfSale: 1, VoucherType: 11}
	gw := &stubGateway{last: 41}

	res, err := seq.Reserve(context.Background(), key)
	require.NoError(t, err)
	defer res.Release()

	auth, err := Submit(context.Background(), gw, lavandinaDraft(invoice.ConceptProducts), res)
	require.NoError(t, err)
	require.Equal(t, "XYZ", auth.Code)
	require.Equal(t, int64(42), auth.VoucherNumber)
	require.Equal(t, int64(42), res.Number())
	require.Len(t, gw.received, 1)
	require.Equal(t, int64(42), gw.received[0].CbteHasta)
}

func TestSubmitRejectsMismatchedSequence(t *testing.T) {
	seq := sequencer.New(sequencer.NewMemoryLocker(), nil, zerolog.Nop())
	res, err := seq.Reserve(context.Background(), sequencer.Key{AccountID: testAccount, PointOfSale: 2, VoucherType: 11})
	require.NoError(t, err)
	defer res.Release()

	gw := &stubGateway{}
	_, err = Submit(context.Background(), gw, lavandinaDraft(invoice.ConceptProducts), res)
	require.Error(t, err)
	require.Empty(t, gw.received)
}
