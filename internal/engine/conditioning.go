package engine

import (
	"context"
	"fmt"

	"imaged/internal/tensor"
)

// Conditioning is the positive/negative prompt embedding pair for one request.
type Conditioning struct {
	Positive *tensor.Tensor
	Negative *tensor.Tensor
}

// EncodeConditioning encodes prompt and negative once each, pads them to the
// same sequence length and repeats them to batch.
func EncodeConditioning(ctx context.Context, enc TextEncoder, prec Precision, prompt, negative string, batch int) (Conditioning, error) {
	pos, err := enc.EncodePrompt(ctx, prec, prompt)
	if err != nil {
		return Conditioning{}, fmt.Errorf("encode prompt: %w", err)
	}
	neg, err := enc.EncodePrompt(ctx, prec, negative)
	if err != nil {
		return Conditioning{}, fmt.Errorf("encode negative prompt: %w", err)
	}
	pos, neg, err = PadToSameLength(pos, neg)
	if err != nil {
		return Conditioning{}, err
	}
	if batch > 1 {
		pos, neg = pos.Repeat(batch), neg.Repeat(batch)
	}
	return Conditioning{Positive: pos, Negative: neg}, nil
}

// PadToSameLength pads the shorter of two [b, seq, dim] embeddings along the
// sequence axis so both have equal length. Embeddings that still disagree
// afterwards (different rank, batch or width) are an error.
func PadToSameLength(a, b *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if a == nil || b == nil {
		return nil, nil, fmt.Errorf("pad conditioning: missing embedding")
	}
	if len(a.Shape) != 3 || len(b.Shape) != 3 {
		return nil, nil, fmt.Errorf("pad conditioning: expected rank-3 embeddings, got %v and %v", a.Shape, b.Shape)
	}
	n := max(a.Dim(1), b.Dim(1))
	a, b = a.PadAxis1(n), b.PadAxis1(n)
	if !a.SameShape(b) {
		return nil, nil, fmt.Errorf("pad conditioning: embeddings %v and %v cannot be aligned", a.Shape, b.Shape)
	}
	return a, b, nil
}
