package schema

import (
	"fmt"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// Article is an inventory item.
type Article struct {
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Unit        string   `json:"unit"`
	Price       *float64 `json:"price,omitempty"`
	Cost        *float64 `json:"cost,omitempty"`
	Stock       *float64 `json:"stock,omitempty"`
	MinStock    *float64 `json:"minStock,omitempty"`
	MaxStock    *float64 `json:"maxStock,omitempty"`
	Active      bool     `json:"active"`
}

// DefaultUnit is used for articles without a unit.
const DefaultUnit = "pcs"

var ArticleSchema = core.ImportSchema[Article]{
	Fields: []core.ImportField{
		{Key: "sku", Label: "SKU", Required: true, Type: core.FieldString},
		{Key: "name", Label: "Article Name", Required: true, Type: core.FieldString},
		{Key: "description", Label: "Description", Type: core.FieldString},
		{Key: "category", Label: "Category", Type: core.FieldString},
		{Key: "unit", Label: "Unit", Type: core.FieldString},
		{Key: "price", Label: "Price", Type: core.FieldNumber, Validate: validAmount("Price")},
		{Key: "cost", Label: "Cost", Type: core.FieldNumber, Validate: validAmount("Cost")},
		{Key: "stock", Label: "Stock Quantity", Type: core.FieldNumber, Validate: core.NumberValidator("Stock Quantity")},
		{Key: "min_stock", Label: "Min Stock", Type: core.FieldNumber, Validate: validAmount("Min Stock")},
		{Key: "max_stock", Label: "Max Stock", Type: core.FieldNumber, Validate: validAmount("Max Stock")},
		{Key: "active", Label: "Active", Type: core.FieldBoolean, Validate: core.BoolValidator("Active")},
	},
	RequiredFields:       []string{"sku"},
	DuplicateCheckFields: []string{"sku"},
	TransformRow:         transformArticle,
	ValidateRow:          validateArticle,
	DisplayName:          articleName,
}

func transformArticle(m map[string]string) Article {
	a := Article{
		SKU:         m["sku"],
		Name:        m["name"],
		Description: m["description"],
		Category:    m["category"],
		Unit:        m["unit"],
		Price:       optionalNumber(m["price"]),
		Cost:        optionalNumber(m["cost"]),
		Stock:       optionalNumber(m["stock"]),
		MinStock:    optionalNumber(m["min_stock"]),
		MaxStock:    optionalNumber(m["max_stock"]),
		Active:      true,
	}
	if a.Unit == "" {
		a.Unit = DefaultUnit
	}
	if v, ok := core.ParseBool(m["active"]); ok {
		a.Active = v
	}
	return a
}

func validateArticle(a Article) core.RowValidation {
	var rv core.RowValidation
	if a.MinStock != nil && a.MaxStock != nil && *a.MinStock > *a.MaxStock {
		rv.Errors = append(rv.Errors, "Min Stock must not exceed Max Stock")
	}
	if a.Price == nil {
		rv.Warnings = append(rv.Warnings, "No price set")
	} else if a.Cost != nil && *a.Cost > *a.Price {
		rv.Warnings = append(rv.Warnings, "Cost is higher than price")
	}
	if a.Stock != nil && *a.Stock < 0 {
		rv.Warnings = append(rv.Warnings, "Stock is negative")
	}
	return rv
}

func articleName(a Article) string {
	if a.Name == "" {
		return a.SKU
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.SKU)
}

var articleTable = store.Table[Article]{
	Name: "articles",
	Columns: []string{
		"sku", "name", "description", "category", "unit",
		"price", "cost", "stock", "min_stock", "max_stock", "active",
	},
	Values: func(a Article) []any {
		return []any{
			a.SKU, a.Name, a.Description, a.Category, a.Unit,
			a.Price, a.Cost, a.Stock, a.MinStock, a.MaxStock, a.Active,
		}
	},
}

var articleExamples = []map[string]string{
	{
		"sku": "PIPE-15-CU", "name": "Copper pipe 15mm", "description": "Per metre",
		"category": "Plumbing", "unit": "m", "price": "4.90", "cost": "2.75",
		"stock": "120", "min_stock": "20", "max_stock": "500", "active": "yes",
	},
	{
		"sku": "FLT-G4", "name": "Air filter G4", "category": "HVAC",
		"price": "12.50", "stock": "35",
	},
}

func init() {
	def := core.Define(core.SchemaInfo{
		Key:         "articles",
		Group:       "Inventory",
		Label:       "Articles",
		Description: "Stock items and spare parts",
	}, ArticleSchema, newCreator(articleTable, "articles"))
	def.Examples = articleExamples
	core.Register(def)
}
