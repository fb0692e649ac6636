package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	chromem "github.com/philippgille/chromem-go"
)

// embeddingDim is the dimensionality of the local embedding space.
const embeddingDim = 256

// LocalEmbedding is a deterministic bag-of-words embedder. Each token hashes
// into a bucket of a fixed-size vector, which is then L2-normalized so cosine
// similarity behaves sensibly. It needs no network access or model files,
// which keeps the knowledge base usable offline; swap in a real embedding
// endpoint for production-quality retrieval.
func LocalEmbedding() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, embeddingDim)
		for _, token := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(token))
			vec[h.Sum32()%embeddingDim]++
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
