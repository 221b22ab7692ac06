package extract

import (
	"context"

	"github.com/Volpestyle/basic-budget-sub003/internal/core/ocr"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// TextExtractor is stage 1: document bytes -> text.
type TextExtractor interface {
	ExtractBytes(ctx context.Context, payload []byte, contentType string) (ocr.Result, error)
}

// Engine turns a document into source-tagged candidate fields. Confidences on
// the returned document are left for the caller to score.
type Engine interface {
	Extract(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error)

func (f EngineFunc) Extract(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error) {
	return f(ctx, payload, contentType)
}
