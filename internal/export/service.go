package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/casekit/evidence-extractor/internal/entity"
	"github.com/casekit/evidence-extractor/internal/llm"
)

// Service produces XLSX bytes for a case's extracted record.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BuildCaseXLSX renders one workbook: a row per extraction field with its
// key, label, and extracted value. Fields come from the case's configured
// specs (default set when absent); record keys outside the specs are
// appended so nothing extracted is silently dropped.
func (s *Service) BuildCaseXLSX(c *entity.Case) ([]byte, error) {
	if len(c.ExtractedInfo) == 0 {
		return nil, fmt.Errorf("case %s has no extracted record", c.ID)
	}

	var record map[string]any
	if err := json.Unmarshal(c.ExtractedInfo, &record); err != nil {
		return nil, fmt.Errorf("decode extracted record: %w", err)
	}

	specs := llm.DefaultExtractionFields()
	if len(c.ExtractionFields) > 0 {
		var custom []llm.FieldSpec
		if err := json.Unmarshal(c.ExtractionFields, &custom); err == nil && len(custom) > 0 {
			specs = custom
		}
	}

	start := time.Now()
	f := excelize.NewFile()
	const sheet = "Extraction"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Field", "Label", "Value"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	write := func(row, col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	row := 2
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		seen[spec.Key] = true
		write(row, 1, spec.Key)
		write(row, 2, spec.Label)
		write(row, 3, cellValue(record[spec.Key]))
		row++
	}

	// extras (error descriptors, ad-hoc keys) in stable order
	var extras []string
	for k := range record {
		if !seen[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		write(row, 1, k)
		write(row, 2, "")
		write(row, 3, cellValue(record[k]))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 24)
	_ = f.SetColWidth(sheet, "B", "B", 24)
	_ = f.SetColWidth(sheet, "C", "C", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"case_id", c.ID.String(),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, float64, bool:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
