// Package embedding provides text embedding via an external provider.
package embedding

import "context"

// Embedder produces one vector per input text, order preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
