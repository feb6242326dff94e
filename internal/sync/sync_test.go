package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"sap-sales-sync/internal/config"
	"sap-sales-sync/internal/records"
	"sap-sales-sync/internal/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"format", fmt.Errorf("decode: %w", ErrFormat), http.StatusBadRequest},
		{"fetch", fmt.Errorf("%w: timeout", ErrFetch), http.StatusInternalServerError},
		{"transaction", ErrTransaction, http.StatusInternalServerError},
		{"unknown entity", ErrUnknownEntity, http.StatusNotFound},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestRegistry_OrderAndReplace(t *testing.T) {
	r := NewRegistry(DefaultSpecs(config.RemoteConfig{})...)

	assert.Equal(t, 5, r.Count())
	assert.Equal(t, []string{
		EntitySalesTargets, EntityCustomers, EntitySalesOrders, EntitySalesInvoices, EntityTargetValues,
	}, r.Names())

	replaced := CustomerSpec("http://sap/customers-v2")
	r.Register(replaced)
	assert.Equal(t, 5, r.Count())
	assert.Equal(t, EntityCustomers, r.Names()[1])

	got, ok := r.Get(EntityCustomers)
	require.True(t, ok)
	assert.Equal(t, "http://sap/customers-v2", got.SourceURL)

	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestDefaultSpecs_URLs(t *testing.T) {
	specs := DefaultSpecs(config.RemoteConfig{
		SalesTargetURL:  "t",
		CustomerURL:     "c",
		SalesOrderURL:   "o",
		SalesInvoiceURL: "i",
		TargetValuesURL: "v",
	})

	urls := make([]string, 0, len(specs))
	for _, s := range specs {
		urls = append(urls, s.SourceURL)
		assert.NotNil(t, s.Decode, s.Name)
		assert.NotEmpty(t, s.Table.KeyColumns, s.Name)
	}
	assert.Equal(t, []string{"t", "c", "o", "i", "v"}, urls)
}

func TestDecodeSalesTarget(t *testing.T) {
	rec, err := decodeSalesTarget(map[string]any{
		"Gjahr":             "2025",
		"MonthD":            "02",
		"Lzone":             " Z1 ",
		"ProdCatgry":        json.Number("42"),
		"PlanOrderQuantity": "1,234.5",
		"Budget":            "99,9",
		"Erdat":             "/Date(1740355200000)/",
		"Ernam":             "JDOE",
	})
	require.NoError(t, err)

	target := rec.(records.SalesTarget)
	assert.Equal(t, "42", target.ProdCatgry)
	assert.Equal(t, "Z1", target.Lzone)
	assert.Equal(t, "1234.50", target.PlanOrderQuantity.StringFixed(2))
	assert.Equal(t, "99.90", target.Budget.StringFixed(2))
	require.NotNil(t, target.Erdat)
	assert.True(t, target.Erdat.Equal(time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025/42/02", target.Key())
}

func TestDecodeSalesTarget_DefaultsCategory(t *testing.T) {
	rec, err := decodeSalesTarget(map[string]any{"Gjahr": "2025", "MonthD": "01"})
	require.NoError(t, err)

	target := rec.(records.SalesTarget)
	assert.Equal(t, UnknownCategory, target.ProdCatgry)
	assert.Nil(t, target.Erdat)
	assert.Equal(t, "0.00", target.Budget.StringFixed(2))
}

func TestDecodeCustomer(t *testing.T) {
	rec, err := decodeCustomer(map[string]any{"Kunnr": "0000100", "Vkorg": "1000", "Name1": "ACME Ltd"})
	require.NoError(t, err)
	assert.Equal(t, records.Customer{Kunnr: "0000100", Vkorg: "1000", Name1: "ACME Ltd"}, rec)
}

func TestDecodeSalesInvoice_SentinelBillingDate(t *testing.T) {
	rec, err := decodeSalesInvoice(map[string]any{"Vbeln": "9000001", "Posnr": "000010", "Netwr": "15.499"})
	require.NoError(t, err)

	inv := rec.(records.SalesInvoice)
	assert.Equal(t, transform.SentinelDate, inv.Fkdat)
	assert.Equal(t, "15.50", inv.Netwr.StringFixed(2))
}

func TestDecodeSalesOrder(t *testing.T) {
	rec, err := decodeSalesOrder(map[string]any{
		"Vbeln": "0000012345",
		"Posnr": "000010",
		"Erdat": nil,
		"Netwr": json.Number("250"),
		"Vtext": "Fertilizer",
	})
	require.NoError(t, err)

	order := rec.(records.SalesOrder)
	assert.Nil(t, order.Erdat)
	assert.Equal(t, "250.00", order.Netwr.StringFixed(2))
	assert.Equal(t, "Fertilizer", order.Vtext)
}

func TestDecode_MissingKeyExcludesRecord(t *testing.T) {
	tests := []struct {
		name   string
		decode DecodeFunc
		raw    map[string]any
	}{
		{"customer without kunnr", decodeCustomer, map[string]any{"Vkorg": "1000"}},
		{"order with blank posnr", decodeSalesOrder, map[string]any{"Vbeln": "1", "Posnr": "  "}},
		{"invoice without vbeln", decodeSalesInvoice, map[string]any{"Posnr": "10"}},
		{"target value without matkl", decodeTargetValue, map[string]any{"Gjahr": "2025", "MonthD": "01", "Bzirk": "N01"}},
		{"sales target without month", decodeSalesTarget, map[string]any{"Gjahr": "2025"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decode(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingKey)
		})
	}
}

func TestRequireCodes_ReportsAllMissing(t *testing.T) {
	_, err := requireCodes(map[string]any{}, "Gjahr", "MonthD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Gjahr, MonthD")
}
