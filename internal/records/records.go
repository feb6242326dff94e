// Package records defines the normalized rows written by the sync jobs.
//
// Record is a closed set: the five fixed entity types plus DynamicRecord for
// sources whose columns are discovered at runtime.
package records

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Param is one named column value of a row.
type Param struct {
	Column string
	Value  any
}

// Record is a row ready for the upsert executor.
type Record interface {
	// Params returns every column of the row in a stable order.
	Params() []Param
	// Key renders the natural key for error reporting.
	Key() string

	record()
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "/")
}

// Customer is a row of customer_info.
type Customer struct {
	Kunnr string
	Vkorg string
	Bzirk string
	Name1 string
	Bztxt string
}

func (Customer) record() {}

func (c Customer) Key() string { return joinKey(c.Kunnr, c.Vkorg, c.Bzirk) }

func (c Customer) Params() []Param {
	return []Param{
		{"kunnr", c.Kunnr},
		{"vkorg", c.Vkorg},
		{"bzirk", c.Bzirk},
		{"name1", c.Name1},
		{"bztxt", c.Bztxt},
	}
}

// SalesTarget is a row of sales_targets.
type SalesTarget struct {
	Gjahr             string
	ProdCatgry        string
	MonthD            string
	Lzone             string
	PlanOrderQuantity decimal.Decimal
	Budget            decimal.Decimal
	Erdat             *time.Time
	Ernam             string
}

func (SalesTarget) record() {}

func (s SalesTarget) Key() string { return joinKey(s.Gjahr, s.ProdCatgry, s.MonthD) }

func (s SalesTarget) Params() []Param {
	return []Param{
		{"gjahr", s.Gjahr},
		{"prod_catgry", s.ProdCatgry},
		{"month_d", s.MonthD},
		{"lzone", s.Lzone},
		{"plan_order_quantity", s.PlanOrderQuantity},
		{"budget", s.Budget},
		{"erdat", s.Erdat},
		{"ernam", s.Ernam},
	}
}

// SalesOrder is one line item of sales_order_info.
type SalesOrder struct {
	Vbeln string
	Posnr string
	Kunnr string
	Erdat *time.Time
	Auart string
	Vkorg string
	Netwr decimal.Decimal
	Waerk string
	Matnr string
	Matkl string
	Wgbez string
	Spart string
	Vtext string
	Bzirk string
	Bztxt string
}

func (SalesOrder) record() {}

func (o SalesOrder) Key() string { return joinKey(o.Vbeln, o.Posnr) }

func (o SalesOrder) Params() []Param {
	return []Param{
		{"vbeln", o.Vbeln},
		{"posnr", o.Posnr},
		{"kunnr", o.Kunnr},
		{"erdat", o.Erdat},
		{"auart", o.Auart},
		{"vkorg", o.Vkorg},
		{"netwr", o.Netwr},
		{"waerk", o.Waerk},
		{"matnr", o.Matnr},
		{"matkl", o.Matkl},
		{"wgbez", o.Wgbez},
		{"spart", o.Spart},
		{"vtext", o.Vtext},
		{"bzirk", o.Bzirk},
		{"bztxt", o.Bztxt},
	}
}

// SalesInvoice is one billing line of sales_invoices. Fkdat is never null.
type SalesInvoice struct {
	Vbeln string
	Posnr string
	Netwr decimal.Decimal
	Matnr string
	Matkl string
	Fkart string
	Fktyp string
	Vkorg string
	Waerk string
	Gjahr string
	Fkdat time.Time
	Aubel string
	Vtweg string
	Bzirk string
	Spart string
	Aupos string
	Werks string
	Kunag string
}

func (SalesInvoice) record() {}

func (i SalesInvoice) Key() string { return joinKey(i.Vbeln, i.Posnr) }

func (i SalesInvoice) Params() []Param {
	return []Param{
		{"vbeln", i.Vbeln},
		{"posnr", i.Posnr},
		{"netwr", i.Netwr},
		{"matnr", i.Matnr},
		{"matkl", i.Matkl},
		{"fkart", i.Fkart},
		{"fktyp", i.Fktyp},
		{"vkorg", i.Vkorg},
		{"waerk", i.Waerk},
		{"gjahr", i.Gjahr},
		{"fkdat", i.Fkdat},
		{"aubel", i.Aubel},
		{"vtweg", i.Vtweg},
		{"bzirk", i.Bzirk},
		{"spart", i.Spart},
		{"aupos", i.Aupos},
		{"werks", i.Werks},
		{"kunag", i.Kunag},
	}
}

// TargetValue is a row of target_values.
type TargetValue struct {
	Gjahr        string
	MonthD       string
	Bzirk        string
	Matkl        string
	PlannedOrder decimal.Decimal
	TotalInvoice decimal.Decimal
}

func (TargetValue) record() {}

func (v TargetValue) Key() string { return joinKey(v.Gjahr, v.MonthD, v.Bzirk, v.Matkl) }

func (v TargetValue) Params() []Param {
	return []Param{
		{"gjahr", v.Gjahr},
		{"month_d", v.MonthD},
		{"bzirk", v.Bzirk},
		{"matkl", v.Matkl},
		{"planned_order", v.PlannedOrder},
		{"total_invoice", v.TotalInvoice},
	}
}
