package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

func TestParseOpenings_AgrupaPorAgregado(t *testing.T) {
	in := strings.Join([]string{
		"kind;id;field;value",
		"# productos",
		"product;prod-1;stock_quantity;10",
		"product;prod-1;stock_location;deposito",
		"cash_account;caja;cash_balance;1500,50",
		"event;ev-1;;",
		"vehicle;van;vehicle_odometer;120000",
	}, "\n")

	got, err := parseOpenings(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 4)

	// orden por id
	assert.Equal(t, []string{"caja", "ev-1", "prod-1", "van"}, []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})

	assert.Equal(t, entity.AggregateCashAccount, got[0].Kind)
	assert.True(t, decimal.RequireFromString("1500.50").Equal(got[0].Opening.Values[entity.FieldCashBalance]))

	assert.Equal(t, entity.AggregateEvent, got[1].Kind)
	assert.Empty(t, got[1].Opening.Values)

	assert.True(t, decimal.NewFromInt(10).Equal(got[2].Opening.Values[entity.FieldStockQuantity]))
	assert.Equal(t, "deposito", got[2].Opening.Refs[entity.FieldStockLocation])
}

func TestParseOpenings_Errores(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"tipo desconocido", "barco;b1;stock_quantity;1"},
		{"id vacío", "product;;stock_quantity;1"},
		{"valor no numérico", "product;p1;stock_quantity;diez"},
		{"tipo inconsistente", "product;x;stock_quantity;1\nevent;x;;"},
		{"columnas de menos", "product;p1;stock_quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseOpenings(strings.NewReader(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestDecodeReader_Latin1(t *testing.T) {
	raw, err := charmap.ISO8859_1.NewEncoder().String("product;pão;stock_location;galpão\n")
	require.NoError(t, err)

	got, err := parseOpenings(decodeReader(bytes.NewReader([]byte(raw)), "ISO-8859-1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pão", got[0].ID)
	assert.Equal(t, "galpão", got[0].Opening.Refs[entity.FieldStockLocation])
}
