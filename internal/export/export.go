// Package export renders session results as JSON, CSV or XLSX reports.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/strategichq/compass/internal/domain"
)

// ErrUnsupportedFormat indicates an unknown export format.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Format names an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat parses a format name, defaulting to JSON when empty.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Extension returns the file extension for a format.
func (f Format) Extension() string {
	return string(f)
}

// Write renders the snapshot to w in the given format.
func Write(w io.Writer, format Format, snap *domain.Snapshot) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatCSV:
		return writeCSV(w, snap)
	case FormatXLSX:
		return writeXLSX(w, snap)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// writeCSV emits a flat report with a record_type discriminator column so the
// whole session fits a single file.
func writeCSV(w io.Writer, snap *domain.Snapshot) error {
	cw := csv.NewWriter(w)

	header := []string{"record_type", "id", "name", "score", "confidence", "detail"}
	if err := cw.Write(header); err != nil {
		return err
	}

	if bc := snap.BusinessCase; bc != nil {
		if err := cw.Write([]string{
			"business_case", snap.SessionID, "Composite",
			formatFloat(bc.Score), formatFloat(bc.Confidence),
			fmt.Sprintf("band %s..%s", formatFloat(bc.Band.Lower), formatFloat(bc.Band.Upper)),
		}); err != nil {
			return err
		}
	}

	for _, layer := range snap.Layers {
		if err := cw.Write([]string{
			"layer", string(layer.ID), layer.Name,
			formatFloat(layer.Score), formatFloat(layer.Confidence),
			strings.Join(layer.Insights, "; "),
		}); err != nil {
			return err
		}
	}

	for _, factor := range snap.Factors {
		detail := string(factor.Layer)
		if factor.Missing {
			detail += " (missing evidence)"
		}
		if err := cw.Write([]string{
			"factor", string(factor.ID), factor.Name,
			formatFloat(factor.NormalizedScore), formatFloat(factor.Confidence),
			detail,
		}); err != nil {
			return err
		}
	}

	for _, seg := range snap.Segments {
		if err := cw.Write([]string{
			"segment", seg.ID, seg.Name,
			formatFloat(seg.AttractivenessScore), "",
			fmt.Sprintf("market size %s", formatFloat(seg.MarketSizeEstimate)),
		}); err != nil {
			return err
		}
	}

	for _, sc := range snap.Scenarios {
		if err := cw.Write([]string{
			"scenario", string(sc.RiskLevel), sc.Name,
			formatFloat(sc.KPIs["compositeScore"]), formatFloat(sc.Probability),
			strings.Join(sc.KeyDrivers, "; "),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// writeXLSX builds a workbook with one sheet per result family.
func writeXLSX(w io.Writer, snap *domain.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	f.SetSheetName("Sheet1", summary)

	rows := [][]any{
		{"Session", snap.SessionID},
	}
	if bc := snap.BusinessCase; bc != nil {
		rows = append(rows,
			[]any{"Composite score", bc.Score},
			[]any{"Confidence", bc.Confidence},
			[]any{"Band lower", bc.Band.Lower},
			[]any{"Band upper", bc.Band.Upper},
			[]any{"Degraded", bc.Degraded},
		)
	}
	if err := writeSheet(f, summary, nil, rows); err != nil {
		return err
	}

	layerRows := make([][]any, 0, len(snap.Layers))
	for _, l := range snap.Layers {
		layerRows = append(layerRows, []any{string(l.ID), l.Name, l.Score, l.Confidence, l.LowEvidence, strings.Join(l.Insights, "; ")})
	}
	if err := writeSheet(f, "Layers",
		[]any{"ID", "Name", "Score", "Confidence", "Low evidence", "Insights"},
		layerRows); err != nil {
		return err
	}

	factorRows := make([][]any, 0, len(snap.Factors))
	for _, fa := range snap.Factors {
		factorRows = append(factorRows, []any{
			string(fa.ID), fa.Name, string(fa.Layer), string(fa.Driver),
			fa.RawScore, fa.NormalizedScore, fa.Confidence, fa.Weight, fa.Missing,
		})
	}
	if err := writeSheet(f, "Factors",
		[]any{"ID", "Name", "Layer", "Driver", "Raw", "Normalized", "Confidence", "Weight", "Missing"},
		factorRows); err != nil {
		return err
	}

	if len(snap.Segments) > 0 {
		segmentRows := make([][]any, 0, len(snap.Segments))
		for _, s := range snap.Segments {
			segmentRows = append(segmentRows, []any{
				s.ID, s.Name, s.AttractivenessScore, s.MarketSizeEstimate,
				strings.Join(s.RiskFactors, "; "), strings.Join(s.Opportunities, "; "),
			})
		}
		if err := writeSheet(f, "Segments",
			[]any{"ID", "Name", "Attractiveness", "Market size", "Risk factors", "Opportunities"},
			segmentRows); err != nil {
			return err
		}
	}

	if len(snap.Scenarios) > 0 {
		scenarioRows := make([][]any, 0, len(snap.Scenarios))
		for _, sc := range snap.Scenarios {
			scenarioRows = append(scenarioRows, []any{
				sc.Name, sc.Probability, string(sc.RiskLevel),
				sc.KPIs["compositeScore"], strings.Join(sc.KeyDrivers, "; "), sc.Narrative,
			})
		}
		if err := writeSheet(f, "Scenarios",
			[]any{"Name", "Probability", "Risk", "Mean score", "Key drivers", "Narrative"},
			scenarioRows); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// writeSheet creates a sheet (unless it already exists) and fills it row by
// row, header first.
func writeSheet(f *excelize.File, name string, header []any, rows [][]any) error {
	if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	rowNum := 1
	if header != nil {
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(name, cell, &header); err != nil {
			return err
		}
		rowNum++
	}
	for _, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
		rowNum++
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
