// Package export writes correlations and conversion metrics to an XLSX
// workbook for offline review.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

// Exporter writes store data to spreadsheet files.
type Exporter struct {
	store   store.Store
	printer *message.Printer
}

// New creates an exporter. locale selects the number formatting, fed
// straight to language.Make; anything unparseable falls back to English.
func New(st store.Store, locale string) *Exporter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Exporter{
		store:   st,
		printer: message.NewPrinter(tag),
	}
}

// Correlations writes the matching correlations plus a metrics summary sheet
// to path. Returns the number of correlation rows written.
func (e *Exporter) Correlations(ctx context.Context, filter store.CorrelationFilter, path string) (int, error) {
	correlations, err := e.store.ListCorrelations(ctx, filter)
	if err != nil {
		return 0, err
	}

	f := xlsx.NewFile()

	if err := e.writeCorrelationSheet(f, correlations); err != nil {
		return 0, err
	}
	if err := e.writeMetricsSheet(f, model.ComputeMetrics(correlations)); err != nil {
		return 0, err
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save workbook %s", path)
	}

	zap.L().Info("correlations exported",
		zap.String("path", path),
		zap.Int("rows", len(correlations)),
	)
	return len(correlations), nil
}

func (e *Exporter) writeCorrelationSheet(f *xlsx.File, correlations []model.Correlation) error {
	sheet, err := f.AddSheet("Correlations")
	if err != nil {
		return eris.Wrap(err, "export: add correlations sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Event ID", "Client ID", "Outcome", "Amount", "Method",
		"Override", "Override Reason", "Conversion Time", "Correlated At",
	} {
		header.AddCell().SetString(h)
	}

	for _, c := range correlations {
		row := sheet.AddRow()
		row.AddCell().SetString(c.PaymentEventID)
		row.AddCell().SetInt64(c.ClientID)
		row.AddCell().SetString(string(c.OutcomeType))
		row.AddCell().SetString(e.formatAmount(c.Amount, c.Currency))
		row.AddCell().SetString(c.PaymentMethod)
		row.AddCell().SetBool(c.ManualOverride)
		row.AddCell().SetString(c.OverrideReason)
		if c.ConversionDuration != nil {
			row.AddCell().SetString(c.ConversionDuration.Round(time.Second).String())
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(c.CorrelatedAt.Format(time.RFC3339))
	}
	return nil
}

func (e *Exporter) writeMetricsSheet(f *xlsx.File, m model.ConversionMetrics) error {
	sheet, err := f.AddSheet("Metrics")
	if err != nil {
		return eris.Wrap(err, "export: add metrics sheet")
	}

	addRow := func(label, value string) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetString(value)
	}

	addRow("Total events", e.printer.Sprintf("%d", m.TotalEvents))
	addRow("Conversions", e.printer.Sprintf("%d", m.Conversions))
	addRow("Success rate", e.printer.Sprintf("%.1f%%", m.SuccessRate*100))
	addRow("Manual overrides", e.printer.Sprintf("%d", m.Overrides))
	if m.MeasuredPaid > 0 {
		addRow("Avg conversion time", m.AvgConversion.Round(time.Second).String())
	}
	for cur, amount := range m.RevenueByCur {
		addRow("Revenue ("+cur+")", e.formatAmount(amount, cur))
	}
	for ot, n := range m.ByOutcome {
		addRow("Outcome: "+string(ot), e.printer.Sprintf("%d", n))
	}
	for method, n := range m.ByPaymentMethod {
		addRow("Method: "+method, e.printer.Sprintf("%d", n))
	}
	return nil
}

// formatAmount renders a minor-unit amount with its currency symbol. Codes
// the currency package does not know fall back to a plain "12345 XYZ".
func (e *Exporter) formatAmount(minor int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%d %s", minor, code)
	}
	return e.printer.Sprint(currency.Symbol(unit.Amount(float64(minor) / 100)))
}
