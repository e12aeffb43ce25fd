package invoice

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTotalIsOrderIndependent(t *testing.T) {
	items := []LineItem{
		{Name: "Lavandina", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(800)},
		{Name: "Detergente", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("1250.50")},
		{Name: "Queso", Quantity: decimal.RequireFromString("0.35"), UnitPrice: decimal.RequireFromString("9800.10")},
		{Name: "Bolsa", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.Zero},
	}
	want := decimal.Zero
	for _, item := range items {
		want = want.Add(item.Quantity.Mul(item.UnitPrice))
	}
	want = want.Round(2)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 25; i++ {
		shuffled := append([]LineItem(nil), items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.True(t, want.Equal(Total(shuffled)), "permutation %d", i)
	}
}

func TestTotalOfEmptyListIsZero(t *testing.T) {
	require.True(t, Total(nil).IsZero())
}

func TestDraftTotalLavandina(t *testing.T) {
	d := Draft{Items: []LineItem{{Name: "Lavandina", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(800)}}}
	require.Equal(t, "1600.00", d.Total().StringFixed(2))
}

func TestEnumCodesDefaultToMostPermissive(t *testing.T) {
	require.Equal(t, 1, VoucherTypeA.Code())
	require.Equal(t, 6, VoucherTypeB.Code())
	require.Equal(t, 11, VoucherTypeC.Code())
	require.Equal(t, 11, VoucherType("Factura M").Code())

	require.Equal(t, 1, ConceptProducts.Code())
	require.Equal(t, 2, ConceptServices.Code())
	require.Equal(t, 3, ConceptBoth.Code())
	require.Equal(t, 1, Concept("").Code())

	require.False(t, ConceptProducts.HasServicePeriod())
	require.True(t, ConceptServices.HasServicePeriod())
	require.True(t, ConceptBoth.HasServicePeriod())
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Date      Date  `json:"date"`
		Scheduled *Date `json:"scheduledFor"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-06-10","scheduledFor":null}`), &payload))
	require.Equal(t, Date{Year: 2025, Month: time.June, Day: 10}, payload.Date)
	require.Nil(t, payload.Scheduled)
	require.Equal(t, "20250610", payload.Date.Compact())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"date":"2025-06-10","scheduledFor":null}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"date":"10/06/2025"}`), &payload))
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2025, Month: time.December, Day: 31}
	require.Equal(t, Date{Year: 2026, Month: time.January, Day: 1}, d.AddDays(1))
	require.Equal(t, 1, d.DaysUntil(d.AddDays(1)))
	require.True(t, d.AddDays(1).After(d))
	require.True(t, d.Before(d.AddDays(1)))

	parsed, err := ParseCompactDate("20250620")
	require.NoError(t, err)
	require.Equal(t, "2025-06-20", parsed.String())
}
