package llm

import "context"

// Completer is the single synchronous capability the pipeline needs from a
// language-model provider: one prompt in, free text out, with an optional
// embedded page image. The same transport serves VLM page analysis and the
// text-only extraction call.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, error)
}
