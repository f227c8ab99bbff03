package types

import "context"

// Item is a single depot slot recognized by the engine.
type Item struct {
	ID         string  `json:"id"`
	Count      int     `json:"count"`
	Similarity float64 `json:"sim"`    // template match score, 0..1
	Box        [4]int  `json:"box"`    // [x, y, w, h] in screenshot pixels
	Ambiguous  bool    `json:"amb"`    // more than one template scored close to the best
	CountRaw   string  `json:"numRaw"` // OCR text before parsing, kept for debugging
}

// Recognizer is a live recognition engine instance.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]Item, error)
}

// ErrorResult captures the error object returned by the engine on failure
type ErrorResult struct {
	Error string `json:"error"`
}
