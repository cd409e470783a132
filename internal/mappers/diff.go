package mappers

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace-sync-service/internal/models"
)

// Canonical product fields compared during ingestion
const (
	FieldStockQuantity = "stockQuantity"
	FieldPrice         = "price"
	FieldRRP           = "rrp"
	FieldName          = "name"
	FieldDescription   = "description"
	FieldStatus        = "status"
	FieldBrand         = "brand"
	FieldBarcode       = "barcode"
)

// Fields lists every synced field with its group, in comparison order
var Fields = []struct {
	Name  string
	Group models.FieldGroup
}{
	{FieldStockQuantity, models.GroupStock},
	{FieldPrice, models.GroupPrice},
	{FieldRRP, models.GroupPrice},
	{FieldName, models.GroupProductData},
	{FieldDescription, models.GroupProductData},
	{FieldStatus, models.GroupProductData},
	{FieldBrand, models.GroupProductData},
	{FieldBarcode, models.GroupProductData},
}

// FieldDiff is one field whose local and incoming values differ.
// BaselineKey is where the agreed value is stored; empty means Field.
type FieldDiff struct {
	Field       string            `json:"field"`
	Group       models.FieldGroup `json:"group"`
	Local       string            `json:"local"`
	Incoming    string            `json:"incoming"`
	BaselineKey string            `json:"-"`
}

// BaselineField returns the baseline key the diff is decided against
func (d FieldDiff) BaselineField() string {
	if d.BaselineKey != "" {
		return d.BaselineKey
	}
	return d.Field
}

// StockBaselineField keys the stock agreed for one warehouse
func StockBaselineField(warehouseID uuid.UUID) string {
	return FieldStockQuantity + "@" + warehouseID.String()
}

// GroupOf returns the group a field belongs to
func GroupOf(field string) models.FieldGroup {
	for _, f := range Fields {
		if f.Name == field {
			return f.Group
		}
	}
	return ""
}

// ProductValues renders the canonical product's synced fields as strings.
// StockQuantity is rendered as given; ingestion passes the on-hand quantity
// of the warehouse the listing maps to.
func ProductValues(p *models.Product) map[string]string {
	return map[string]string{
		FieldStockQuantity: strconv.Itoa(p.StockQuantity),
		FieldPrice:         p.Price.StringFixed(2),
		FieldRRP:           p.RRP.StringFixed(2),
		FieldName:          p.Name,
		FieldDescription:   p.Description,
		FieldStatus:        string(p.Status),
		FieldBrand:         p.Brand,
		FieldBarcode:       p.Barcode,
	}
}

// IncomingValues renders an incoming product's fields. Fields the
// marketplace did not send are absent.
func IncomingValues(p *CanonicalProduct) map[string]string {
	values := map[string]string{
		FieldStockQuantity: strconv.Itoa(p.StockQuantity),
		FieldPrice:         p.Price.StringFixed(2),
		FieldName:          p.Name,
		FieldStatus:        string(p.Status),
	}
	if p.RRP != nil {
		values[FieldRRP] = p.RRP.StringFixed(2)
	}
	if p.Description != "" {
		values[FieldDescription] = p.Description
	}
	if p.Brand != "" {
		values[FieldBrand] = p.Brand
	}
	if p.Barcode != "" {
		values[FieldBarcode] = p.Barcode
	}
	return values
}

// FindDifferences compares every field the marketplace sent
func FindDifferences(local *models.Product, incoming *CanonicalProduct) []FieldDiff {
	localValues := ProductValues(local)
	incomingValues := IncomingValues(incoming)

	var diffs []FieldDiff
	for _, f := range Fields {
		in, ok := incomingValues[f.Name]
		if !ok {
			continue
		}
		if lv := localValues[f.Name]; lv != in {
			diffs = append(diffs, FieldDiff{Field: f.Name, Group: f.Group, Local: lv, Incoming: in})
		}
	}
	return diffs
}

// ApplyValue writes a rendered value into the canonical product.
// Stock is not applied here; it flows through stock levels.
func ApplyValue(p *models.Product, field, value string) error {
	switch field {
	case FieldPrice, FieldRRP:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, value, err)
		}
		if field == FieldPrice {
			p.Price = d
		} else {
			p.RRP = d
		}
	case FieldName:
		p.Name = value
	case FieldDescription:
		p.Description = value
	case FieldStatus:
		p.Status = models.ProductStatus(value)
	case FieldBrand:
		p.Brand = value
	case FieldBarcode:
		p.Barcode = value
	case FieldStockQuantity:
		return fmt.Errorf("stock is reconciled through stock levels")
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}
