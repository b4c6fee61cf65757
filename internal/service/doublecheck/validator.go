// Package doublecheck replays an ordered scan sequence against the order's
// expectation (ship-to address, SKUs and quantities) and reports progress
// and errors. Validation is a pure function over the sequence: replaying
// the same scans always yields the same result, so callers re-run it from
// the stored history after every new scan.
package doublecheck

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/galpao/wms/internal/domain"
)

// Operator-facing messages, in the warehouse floor language.
const (
	msgFirstScanMustBeAddress = "Primeira leitura deve ser do endereço."
	msgAddressMismatch        = "Endereço divergente do esperado."
	msgIdempotencyConflict    = "Chave de idempotência reutilizada com dados divergentes."
	msgQuantityWithoutSKU     = "Leitura de quantidade sem SKU correspondente."
)

// Expectation is what the picked goods must match.
type Expectation struct {
	ShipAddress string
	Items       []domain.OrderItem
}

// Result is the outcome of replaying one scan sequence.
// Ok means no errors were appended; IsComplete means every expected
// quantity reached exactly zero. Partial progress with no mistakes is the
// common Ok=true, IsComplete=false state.
type Result struct {
	Ok         bool
	IsComplete bool
	Errors     []string
	Remaining  map[string]float64
}

// Validate replays scans in sequence order against the expectation.
func Validate(expectation Expectation, scans []domain.ScanEvent) Result {
	remaining := make(map[string]float64, len(expectation.Items))
	for _, item := range expectation.Items {
		remaining[domain.NormalizeSKU(item.SKU)] += float64(item.Quantity)
	}

	var (
		errs             []string
		pendingSKU       string
		addressValidated bool
		seenKeys         = make(map[string]string)
	)

loop:
	for _, scan := range scans {
		if scan.IdempotencyKey != "" {
			fp := scanFingerprint(scan)
			if prev, seen := seenKeys[scan.IdempotencyKey]; seen {
				if prev == fp {
					// Idempotent replay of a delivered scan; skip it.
					continue
				}
				errs = append(errs, msgIdempotencyConflict)
				break loop
			}
			seenKeys[scan.IdempotencyKey] = fp
		}

		if !addressValidated {
			if scan.Type != domain.ScanTypeAddress {
				errs = append(errs, msgFirstScanMustBeAddress)
				break loop
			}
			if strings.TrimSpace(scan.Value) != strings.TrimSpace(expectation.ShipAddress) {
				errs = append(errs, msgAddressMismatch)
				break loop
			}
			addressValidated = true
			continue
		}

		switch scan.Type {
		case domain.ScanTypeProduct:
			sku := domain.NormalizeSKU(scan.Value)
			if _, known := remaining[sku]; !known {
				errs = append(errs, fmt.Sprintf("SKU não esperado: %s.", sku))
				continue
			}
			pendingSKU = sku

		case domain.ScanTypeQuantity:
			if pendingSKU == "" {
				errs = append(errs, msgQuantityWithoutSKU)
				continue
			}
			qty, ok := scanQuantity(scan)
			if !ok {
				errs = append(errs, fmt.Sprintf("Quantidade inválida: %q.", scan.Value))
				continue
			}
			remaining[pendingSKU] -= qty
			if remaining[pendingSKU] < 0 {
				errs = append(errs, fmt.Sprintf("Quantidade excedente para o SKU %s.", pendingSKU))
			}
			pendingSKU = ""

		default:
			errs = append(errs, fmt.Sprintf("Tipo de leitura inválido: %s.", scan.Type))
		}
	}

	isComplete := true
	for _, qty := range remaining {
		if qty != 0 {
			isComplete = false
			break
		}
	}

	return Result{
		Ok:         len(errs) == 0,
		IsComplete: isComplete,
		Errors:     errs,
		Remaining:  remaining,
	}
}

// scanQuantity resolves the numeric quantity of a QUANTITY_SCAN: the typed
// field wins, otherwise the raw value is parsed. Only finite positive
// numbers count.
func scanQuantity(scan domain.ScanEvent) (float64, bool) {
	var qty float64
	if scan.Quantity != nil {
		qty = *scan.Quantity
	} else {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(scan.Value), 64)
		if err != nil {
			return 0, false
		}
		qty = parsed
	}
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		return 0, false
	}
	return qty, true
}

// scanFingerprint identifies the payload behind an idempotency key.
func scanFingerprint(scan domain.ScanEvent) string {
	qty := ""
	if scan.Quantity != nil {
		qty = strconv.FormatFloat(*scan.Quantity, 'g', -1, 64)
	}
	return string(scan.Type) + "|" + scan.Value + "|" + qty
}
