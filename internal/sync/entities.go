package sync

import (
	"errors"
	"fmt"
	"strings"

	"sap-sales-sync/internal/config"
	"sap-sales-sync/internal/records"
	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/transform"
)

// Entity names, also used as metric and log labels.
const (
	EntitySalesTargets  = "sales_targets"
	EntityCustomers     = "customers"
	EntitySalesOrders   = "sales_orders"
	EntitySalesInvoices = "sales_invoices"
	EntityTargetValues  = "target_values"
)

// UnknownCategory replaces a missing product category in sales targets.
const UnknownCategory = "UNKNOWN"

// ErrMissingKey excludes a record whose natural key is absent.
var ErrMissingKey = errors.New("natural key field missing")

// DefaultSpecs returns the five SAP entities in scheduler order.
func DefaultSpecs(remote config.RemoteConfig) []EntitySpec {
	return []EntitySpec{
		SalesTargetSpec(remote.SalesTargetURL),
		CustomerSpec(remote.CustomerURL),
		SalesOrderSpec(remote.SalesOrderURL),
		SalesInvoiceSpec(remote.SalesInvoiceURL),
		TargetValueSpec(remote.TargetValuesURL),
	}
}

// requireCode reads a natural key field. Absent or blank values are rejected.
func requireCode(raw map[string]any, field string) (string, error) {
	v := transform.CoerceCode(raw[field], "")
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, field)
	}
	return v, nil
}

// requireCodes reads several key fields, reporting every missing one.
func requireCodes(raw map[string]any, fields ...string) ([]string, error) {
	out := make([]string, len(fields))
	var missing []string
	for i, f := range fields {
		v, err := requireCode(raw, f)
		if err != nil {
			missing = append(missing, f)
			continue
		}
		out[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}
	return out, nil
}

func str(raw map[string]any, field string) string {
	return transform.CoerceString(raw[field], "")
}

func code(raw map[string]any, field string) string {
	return transform.CoerceCode(raw[field], "")
}

// SalesTargetSpec syncs planned quantities and budgets per year, category and month.
func SalesTargetSpec(url string) EntitySpec {
	return EntitySpec{
		Name:        EntitySalesTargets,
		DisplayName: "Sales Data",
		SourceURL:   url,
		Table: repository.TableSpec{
			Name:       "sales_targets",
			KeyColumns: []string{"gjahr", "prod_catgry", "month_d"},
		},
		Decode: decodeSalesTarget,
	}
}

func decodeSalesTarget(raw map[string]any) (records.Record, error) {
	keys, err := requireCodes(raw, "Gjahr", "MonthD")
	if err != nil {
		return nil, err
	}
	return records.SalesTarget{
		Gjahr:             keys[0],
		ProdCatgry:        transform.CoerceCode(raw["ProdCatgry"], UnknownCategory),
		MonthD:            keys[1],
		Lzone:             code(raw, "Lzone"),
		PlanOrderQuantity: transform.DecodeDecimal(raw["PlanOrderQuantity"]),
		Budget:            transform.DecodeDecimal(raw["Budget"]),
		Erdat:             transform.DecodeRemoteDate(raw["Erdat"]),
		Ernam:             str(raw, "Ernam"),
	}, nil
}

// CustomerSpec syncs customer master data per sales org and district.
func CustomerSpec(url string) EntitySpec {
	return EntitySpec{
		Name:        EntityCustomers,
		DisplayName: "Customer Info Data",
		SourceURL:   url,
		Table: repository.TableSpec{
			Name:       "customer_info",
			KeyColumns: []string{"kunnr", "vkorg", "bzirk"},
		},
		Decode: decodeCustomer,
	}
}

func decodeCustomer(raw map[string]any) (records.Record, error) {
	keys, err := requireCodes(raw, "Kunnr", "Vkorg")
	if err != nil {
		return nil, err
	}
	return records.Customer{
		Kunnr: keys[0],
		Vkorg: keys[1],
		Bzirk: code(raw, "Bzirk"),
		Name1: str(raw, "Name1"),
		Bztxt: str(raw, "Bztxt"),
	}, nil
}

// SalesOrderSpec syncs sales order line items.
func SalesOrderSpec(url string) EntitySpec {
	return EntitySpec{
		Name:        EntitySalesOrders,
		DisplayName: "Sales Order Data",
		SourceURL:   url,
		Table: repository.TableSpec{
			Name:       "sales_order_info",
			KeyColumns: []string{"vbeln", "posnr"},
		},
		Decode: decodeSalesOrder,
	}
}

func decodeSalesOrder(raw map[string]any) (records.Record, error) {
	keys, err := requireCodes(raw, "Vbeln", "Posnr")
	if err != nil {
		return nil, err
	}
	return records.SalesOrder{
		Vbeln: keys[0],
		Posnr: keys[1],
		Kunnr: code(raw, "Kunnr"),
		Erdat: transform.DecodeRemoteDate(raw["Erdat"]),
		Auart: code(raw, "Auart"),
		Vkorg: code(raw, "Vkorg"),
		Netwr: transform.DecodeDecimal(raw["Netwr"]),
		Waerk: code(raw, "Waerk"),
		Matnr: code(raw, "Matnr"),
		Matkl: code(raw, "Matkl"),
		Wgbez: str(raw, "Wgbez"),
		Spart: code(raw, "Spart"),
		Vtext: str(raw, "Vtext"),
		Bzirk: code(raw, "Bzirk"),
		Bztxt: str(raw, "Bztxt"),
	}, nil
}

// SalesInvoiceSpec syncs billing document lines.
func SalesInvoiceSpec(url string) EntitySpec {
	return EntitySpec{
		Name:        EntitySalesInvoices,
		DisplayName: "Sales Invoice Data",
		SourceURL:   url,
		Table: repository.TableSpec{
			Name:       "sales_invoices",
			KeyColumns: []string{"vbeln", "posnr"},
		},
		Decode: decodeSalesInvoice,
	}
}

func decodeSalesInvoice(raw map[string]any) (records.Record, error) {
	keys, err := requireCodes(raw, "Vbeln", "Posnr")
	if err != nil {
		return nil, err
	}
	return records.SalesInvoice{
		Vbeln: keys[0],
		Posnr: keys[1],
		Netwr: transform.DecodeDecimal(raw["Netwr"]),
		Matnr: code(raw, "Matnr"),
		Matkl: code(raw, "Matkl"),
		Fkart: code(raw, "Fkart"),
		Fktyp: code(raw, "Fktyp"),
		Vkorg: code(raw, "Vkorg"),
		Waerk: code(raw, "Waerk"),
		Gjahr: code(raw, "Gjahr"),
		Fkdat: transform.DateOrSentinel(raw["Fkdat"]),
		Aubel: code(raw, "Aubel"),
		Vtweg: code(raw, "Vtweg"),
		Bzirk: code(raw, "Bzirk"),
		Spart: code(raw, "Spart"),
		Aupos: code(raw, "Aupos"),
		Werks: code(raw, "Werks"),
		Kunag: code(raw, "Kunag"),
	}, nil
}

// TargetValueSpec syncs planned order and invoiced totals per district and material group.
func TargetValueSpec(url string) EntitySpec {
	return EntitySpec{
		Name:        EntityTargetValues,
		DisplayName: "Target Values Data",
		SourceURL:   url,
		Table: repository.TableSpec{
			Name:       "target_values",
			KeyColumns: []string{"gjahr", "month_d", "bzirk", "matkl"},
		},
		Decode: decodeTargetValue,
	}
}

func decodeTargetValue(raw map[string]any) (records.Record, error) {
	keys, err := requireCodes(raw, "Gjahr", "MonthD", "Bzirk", "Matkl")
	if err != nil {
		return nil, err
	}
	return records.TargetValue{
		Gjahr:        keys[0],
		MonthD:       keys[1],
		Bzirk:        keys[2],
		Matkl:        keys[3],
		PlannedOrder: transform.DecodeDecimal(raw["PlannedOrder"]),
		TotalInvoice: transform.DecodeDecimal(raw["TotalInvoice"]),
	}, nil
}
