package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// opening agregado a registrar con sus valores de apertura.
type opening struct {
	Kind    entity.AggregateKind
	ID      string
	Opening entity.Opening
}

// decodeReader envuelve r según el charset de la planilla exportada.
func decodeReader(r io.Reader, charset string) io.Reader {
	switch strings.ToUpper(strings.ReplaceAll(charset, "-", "")) {
	case "ISO88591", "LATIN1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	case "WINDOWS1252", "CP1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder())
	}
	return r
}

// parseOpenings lee filas "kind;id;field;value" separadas por punto y coma.
// Para stock_location la cuarta columna es la ubicación, no un número. Líneas vacías o con '#' se ignoran;
// la primera fila puede ser cabecera.
func parseOpenings(r io.Reader) ([]opening, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.Comment = '#'
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	byID := make(map[string]*opening)
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("leer planilla: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "kind") {
			continue
		}
		kind := entity.AggregateKind(strings.TrimSpace(row[0]))
		id := strings.TrimSpace(row[1])
		field := entity.Field(strings.TrimSpace(row[2]))
		raw := strings.TrimSpace(row[3])
		if !kind.Valid() {
			return nil, fmt.Errorf("línea %d: tipo de agregado desconocido %q", line, kind)
		}
		if id == "" {
			return nil, fmt.Errorf("línea %d: id vacío", line)
		}
		o, ok := byID[id]
		if !ok {
			o = &opening{Kind: kind, ID: id, Opening: entity.Opening{
				Values: map[entity.Field]decimal.Decimal{},
				Refs:   map[entity.Field]string{},
			}}
			byID[id] = o
		} else if o.Kind != kind {
			return nil, fmt.Errorf("línea %d: %s ya declarado como %s", line, id, o.Kind)
		}
		if field == "" {
			continue
		}
		if field == entity.FieldStockLocation {
			o.Opening.Refs[field] = raw
			continue
		}
		// planillas regionales usan coma decimal
		v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
		if err != nil {
			return nil, fmt.Errorf("línea %d: valor %q inválido: %w", line, raw, err)
		}
		o.Opening.Values[field] = v
	}

	out := make([]opening, 0, len(byID))
	for _, o := range byID {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
