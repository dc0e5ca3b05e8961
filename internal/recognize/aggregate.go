package recognize

import (
	"fmt"
	"sort"
	"strings"
)

// Section headers for stage summaries. Each successful page contributes one
// tagged section; failed pages are counted but never summarized.
const (
	ocrSectionFormat = "=== Page %d ===\n%s\n"
	vlmSectionFormat = "=== VLM Page %d Analysis ===\n%s\n"

	ocrBlockHeader = "=== OCR Results ===\n"
	vlmBlockHeader = "=== VLM Analysis ===\n"
)

// BuildOCRResult assembles the OCR stage aggregate from per-page results.
func BuildOCRResult(pages []PageResult) StageResult {
	return buildStageResult(pages, ocrSectionFormat)
}

// BuildVLMResult assembles the VLM stage aggregate from per-page results.
func BuildVLMResult(pages []PageResult) StageResult {
	return buildStageResult(pages, vlmSectionFormat)
}

func buildStageResult(pages []PageResult, sectionFormat string) StageResult {
	ordered := make([]PageResult, len(pages))
	copy(ordered, pages)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PageNum < ordered[j].PageNum })

	var b strings.Builder
	successful := 0
	for _, p := range ordered {
		if !p.Success {
			continue
		}
		successful++
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, sectionFormat, p.PageNum, p.Text)
	}

	summary := b.String()
	return StageResult{
		Pages:           ordered,
		TotalPages:      len(ordered),
		SuccessfulPages: successful,
		Summary:         summary,
		TotalTextLength: len(summary),
	}
}

// CombineSummaries joins the two modality summaries into the text handed to
// the extraction engine. A stage with zero successful pages contributes
// nothing, so an empty string means both modalities came up dry.
func CombineSummaries(ocr, vlm StageResult) string {
	var parts []string
	if ocr.SuccessfulPages > 0 && ocr.Summary != "" {
		parts = append(parts, ocrBlockHeader+ocr.Summary)
	}
	if vlm.SuccessfulPages > 0 && vlm.Summary != "" {
		parts = append(parts, vlmBlockHeader+vlm.Summary)
	}
	return strings.Join(parts, "\n\n")
}
