package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const timeLayout = "02/01/2006 15:04:05"

type Renderer interface {
	Render(s Summary) ([]byte, error)
	Extension() string
	ContentType() string
}

// NewRenderer escolhe o renderer pelo REPORT_FORMAT.
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "", "text":
		return TextRenderer{}, nil
	case "xlsx":
		return XLSXRenderer{}, nil
	default:
		return nil, fmt.Errorf("formato de relatório desconhecido: %s", format)
	}
}

type TextRenderer struct{}

func (TextRenderer) Extension() string   { return "txt" }
func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

func (TextRenderer) Render(s Summary) ([]byte, error) {
	var b strings.Builder
	line := strings.Repeat("=", 44)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "FECHAMENTO DE CAIXA")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Caixa:        %s\n", s.SessionID)
	fmt.Fprintf(&b, "Filial:       %d\n", s.BranchID)
	fmt.Fprintf(&b, "Aberto em:    %s\n", formatTime(s.OpenedAt))
	fmt.Fprintf(&b, "Fechado em:   %s\n", formatTime(s.ClosedAt))
	fmt.Fprintf(&b, "Fechado por:  %s\n", s.ClosedBy)
	fmt.Fprintln(&b, strings.Repeat("-", 44))

	fmt.Fprintf(&b, "Movimentos:   %d\n", s.MovementCount)
	for _, t := range s.sortedTotals() {
		fmt.Fprintf(&b, "  %-12s %s\n", movementLabel(t.Type)+":", FormatBRL(t.Total))
	}
	fmt.Fprintln(&b, strings.Repeat("-", 44))

	fmt.Fprintf(&b, "Total apurado: %s\n", FormatBRL(s.ClosingAmount))
	fmt.Fprintf(&b, "Total contado: %s\n", FormatBRL(s.CountedAmount))
	fmt.Fprintf(&b, "Diferença:     %s\n", FormatBRL(s.Difference))
	fmt.Fprintln(&b, line)

	return []byte(b.String()), nil
}

type XLSXRenderer struct{}

func (XLSXRenderer) Extension() string { return "xlsx" }
func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

const xlsxSheet = "Fechamento"

func (XLSXRenderer) Render(s Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}

	rows := [][]any{
		{"Caixa", s.SessionID.String()},
		{"Filial", s.BranchID},
		{"Aberto em", formatTime(s.OpenedAt)},
		{"Fechado em", formatTime(s.ClosedAt)},
		{"Fechado por", s.ClosedBy},
		{"Movimentos", s.MovementCount},
		{},
	}
	for _, t := range s.sortedTotals() {
		rows = append(rows, []any{movementLabel(t.Type), FormatBRL(t.Total)})
	}
	rows = append(rows,
		[]any{},
		[]any{"Total apurado", FormatBRL(s.ClosingAmount)},
		[]any{"Total contado", FormatBRL(s.CountedAmount)},
		[]any{"Diferença", FormatBRL(s.Difference)},
	)

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(xlsxSheet, "A", "A", 18); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(xlsxSheet, "B", "B", 40); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}
