package recognize

import "context"

// Recognition method identifiers recorded on each PageResult.
const (
	MethodPrimary  = "baidu_ocr"
	MethodFallback = "tesseract_fallback"
	MethodVLM      = "vlm"
	MethodFailed   = "failed"
)

// PageResult is the outcome of one recognition call against one page.
// Success == false implies Text == "".
type PageResult struct {
	PageNum    int    `json:"page_num"`
	Method     string `json:"method"`
	Success    bool   `json:"success"`
	Text       string `json:"text"`
	TextLength int    `json:"text_length"`
	Error      string `json:"error,omitempty"`
}

// StageResult aggregates one modality over a page sequence. Pages are ordered
// by ascending PageNum regardless of the order calls completed in.
type StageResult struct {
	Pages           []PageResult `json:"pages"`
	TotalPages      int          `json:"total_pages"`
	SuccessfulPages int          `json:"successful_pages"`
	Summary         string       `json:"summary"`
	TotalTextLength int          `json:"total_text_length"`
}

// OCRProvider is the quota-constrained primary text-recognition service.
// Tokens are exchangeable and cacheable; Recognize fails with an error
// wrapping common.ErrAuth when the token has been invalidated.
type OCRProvider interface {
	Authenticate(ctx context.Context) (string, error)
	Recognize(ctx context.Context, png []byte, token string) (string, error)
}

// FallbackEngine is the locally-available secondary recognizer, used only
// when the primary provider fails for a page.
type FallbackEngine interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// PageAnalyzer is the vision-language capability the VLM stage fans out over.
type PageAnalyzer interface {
	AnalyzePage(ctx context.Context, png []byte) (string, error)
}
