/*
Package factory converts loosely typed JSON into budget import records.

PURPOSE:
  Import data usually comes from spreadsheets or an automated document
  reader, neither of which produces clean JSON. The factory accepts what
  they actually emit and hands budget.Import a uniform []ImportRecord.

ACCEPTED SHAPES:
  [ {...}, {...} ]
  { "records": [ {...}, {...} ] }     ("items" and "itens" also work)

RECORD SCHEMA:
  {
    "level": "1.2",                    // or "nivel"; string or number
    "source": "SINAPI",                // or "fonte"
    "code": "96522",                   // or "codigo"
    "description": "Escavação manual", // or "descricao"
    "unit": "m3",                      // or "unidade"
    "quantity": "10,5",                // or "quantidade"; string or number
    "material_unit_cost": 12.3,        // or "custo_material"
    "labor_unit_cost": "4",            // or "custo_mao_obra"
    "use_combined_unit_cost": false    // or "custo_unitario_combinado"
  }

  Keys are matched case-insensitively and without accents, so
  "Descrição" and "DESCRICAO" both map to description. Unknown keys are
  ignored. Numbers accept a comma decimal separator; a quantity or cost
  that is not a number is imported as 0 and reported.

SEE ALSO:
  - budget/import.go: Builds the item list from the records
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// KEY ALIASES
// =============================================================================

const (
	keyLevel       = "level"
	keySource      = "source"
	keyCode        = "code"
	keyDescription = "description"
	keyUnit        = "unit"
	keyQuantity    = "quantity"
	keyMaterial    = "material_unit_cost"
	keyLabor       = "labor_unit_cost"
	keyCombined    = "use_combined_unit_cost"
)

var aliases = map[string]string{
	"nivel":                    keyLevel,
	"item":                     keyLevel,
	"fonte":                    keySource,
	"banco":                    keySource,
	"codigo":                   keyCode,
	"descricao":                keyDescription,
	"unidade":                  keyUnit,
	"un":                       keyUnit,
	"quantidade":               keyQuantity,
	"qtd":                      keyQuantity,
	"custo_material":           keyMaterial,
	"material":                 keyMaterial,
	"custo_mao_obra":           keyLabor,
	"mao_obra":                 keyLabor,
	"labor":                    keyLabor,
	"custo_unitario_combinado": keyCombined,
	"combined_unit_cost":       keyCombined,
}

var wrapperKeys = []string{"records", "items", "itens"}

var separators = strings.NewReplacer(" ", "_", "-", "_")

// foldAccents strips combining marks, so "descrição" becomes "descricao".
// Transformers keep state; build one per call.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// canonicalKey maps a raw JSON key to its canonical field name.
func canonicalKey(k string) string {
	k = separators.Replace(foldAccents(strings.ToLower(strings.TrimSpace(k))))
	if c, ok := aliases[k]; ok {
		return c
	}
	return k
}

// =============================================================================
// IMPORT FACTORY
// =============================================================================

// ImportFactory converts JSON import payloads to budget.ImportRecord.
type ImportFactory struct{}

// NewImportFactory creates a new import factory.
func NewImportFactory() *ImportFactory {
	return &ImportFactory{}
}

// ParseImportJSON parses data with a default factory.
func ParseImportJSON(data []byte) ([]budget.ImportRecord, error) {
	return NewImportFactory().Parse(data)
}

// Parse decodes data into records. A payload that is not a record list, or a
// record with unreadable text fields, wraps budget.ErrImportFailed and yields
// no records. Unreadable numbers do not fail: they read as zero and are
// listed in the record's Coerced fields.
func (f *ImportFactory) Parse(data []byte) ([]budget.ImportRecord, error) {
	raws, err := f.splitRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", budget.ErrImportFailed, err)
	}
	return f.FromRaw(raws)
}

// FromRaw converts already split JSON objects into records.
func (f *ImportFactory) FromRaw(raws []json.RawMessage) ([]budget.ImportRecord, error) {
	out := make([]budget.ImportRecord, 0, len(raws))
	for i, raw := range raws {
		rec, err := parseRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", budget.ErrImportFailed, i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// splitRecords accepts a bare array or an object wrapping one.
func (f *ImportFactory) splitRecords(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var list []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse import JSON: %w", err)
		}
		return list, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse import JSON: %w", err)
	}
	for k, v := range wrapper {
		for _, want := range wrapperKeys {
			if strings.EqualFold(k, want) {
				if err := json.Unmarshal(v, &list); err != nil {
					return nil, fmt.Errorf("%q is not a list: %w", k, err)
				}
				return list, nil
			}
		}
	}
	return nil, fmt.Errorf("no record list found (expected an array or one of %v)", wrapperKeys)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRecord(raw json.RawMessage) (budget.ImportRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return budget.ImportRecord{}, fmt.Errorf("not an object: %w", err)
	}

	byKey := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		byKey[canonicalKey(k)] = v
	}

	var rec budget.ImportRecord
	var err error
	if rec.Level, err = text(byKey[keyLevel]); err != nil {
		return rec, fmt.Errorf("level: %w", err)
	}
	if rec.Source, err = text(byKey[keySource]); err != nil {
		return rec, fmt.Errorf("source: %w", err)
	}
	if rec.Code, err = text(byKey[keyCode]); err != nil {
		return rec, fmt.Errorf("code: %w", err)
	}
	if rec.Description, err = text(byKey[keyDescription]); err != nil {
		return rec, fmt.Errorf("description: %w", err)
	}
	if rec.Unit, err = text(byKey[keyUnit]); err != nil {
		return rec, fmt.Errorf("unit: %w", err)
	}
	rec.Quantity = number(&rec, "quantity", byKey[keyQuantity])
	rec.MaterialUnitCost = number(&rec, "material_unit_cost", byKey[keyMaterial])
	rec.LaborUnitCost = number(&rec, "labor_unit_cost", byKey[keyLabor])
	if rec.UseCombinedUnitCost, err = flag(byKey[keyCombined]); err != nil {
		return rec, fmt.Errorf("use_combined_unit_cost: %w", err)
	}
	return rec, nil
}

// text reads a string, number or null as text. Numbers keep their
// literal form so a level like 1.10 is not turned into 1.1.
func text(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw), nil
	default:
		return "", fmt.Errorf("expected text, got %s", raw)
	}
}

// number reads a quantity or cost. A value that is not a number reads as
// zero and field is added to rec.Coerced.
func number(rec *budget.ImportRecord, field string, raw json.RawMessage) decimal.Decimal {
	s, err := text(raw)
	if err == nil {
		var d decimal.Decimal
		if d, err = budget.ParseNumber(s); err == nil {
			return d
		}
	}
	rec.Coerced = append(rec.Coerced, field)
	return decimal.Zero
}

// flag reads a boolean, also accepting "true"/"sim"/"1" style strings.
func flag(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	s, err := text(raw)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "true", "yes", "sim", "s", "y", "1":
		return true, nil
	case "", "false", "no", "nao", "não", "n", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %q", s)
	}
}
