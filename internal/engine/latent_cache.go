package engine

import "imaged/internal/tensor"

// LatentCache holds the source-image latent and mask for one request. It is
// filled on first use, reused by later sampling passes of the same request and
// cleared by the Coordinator when the request ends.
type LatentCache struct {
	latent *tensor.Tensor
	mask   *tensor.Tensor
	filled bool
	builds int
}

// Get returns the cached pair, calling build only if the cache is empty.
func (c *LatentCache) Get(build func() (latent, mask *tensor.Tensor, err error)) (*tensor.Tensor, *tensor.Tensor, error) {
	if c.filled {
		return c.latent, c.mask, nil
	}
	latent, mask, err := build()
	if err != nil {
		return nil, nil, err
	}
	c.latent, c.mask, c.filled = latent, mask, true
	c.builds++
	return latent, mask, nil
}

// Populated reports whether a latent is currently cached.
func (c *LatentCache) Populated() bool { return c.filled }

// Builds returns how many times the cache was filled.
func (c *LatentCache) Builds() int { return c.builds }

// Clear drops the cached tensors.
func (c *LatentCache) Clear() {
	c.latent, c.mask, c.filled = nil, nil, false
}
