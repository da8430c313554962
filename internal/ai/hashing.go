package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashingDimension = 256

type hashingConfig struct {
	Dimension int `json:"dimension"`
}

// hashingProvider embeds text offline by hashing lowercased terms into a
// fixed number of signed buckets. It has no language model.
type hashingProvider struct {
	dim int
}

func NewHashingProvider(dim int) IProvider {
	if dim <= 0 {
		dim = defaultHashingDimension
	}
	return &hashingProvider{dim: dim}
}

func (p *hashingProvider) Name() string {
	return "hashing"
}

func (p *hashingProvider) Generate(ctx context.Context, model string, prompt string, temperature float32) (string, error) {
	return "", fmt.Errorf("hashing provider cannot generate text: %w", ErrUnavailable)
}

func (p *hashingProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, p.vector(text))
	}
	return out, nil
}

func (p *hashingProvider) vector(text string) []float32 {
	vec := make([]float32, p.dim)
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, term := range terms {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dim))
		if sum>>63 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func createHashingFactory(args interface{}) (IProvider, error) {
	cfg := &hashingConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	return NewHashingProvider(cfg.Dimension), nil
}

func init() {
	Register("hashing", createHashingFactory)
}
