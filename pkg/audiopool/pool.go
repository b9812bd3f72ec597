package audiopool

import (
	"sync"
)

// FloatPool reuses float32 sample blocks on the capture and playback
// hot paths to keep allocations off the audio loop.
type FloatPool struct {
	pool sync.Pool
	size int
}

// NewFloatPool creates a pool of blocks with the given capacity.
func NewFloatPool(size int) *FloatPool {
	return &FloatPool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]float32, size)
			},
		},
	}
}

func (p *FloatPool) Get() []float32 {
	return p.pool.Get().([]float32)[:p.size]
}

func (p *FloatPool) Put(s []float32) {
	if cap(s) >= p.size {
		p.pool.Put(s[:cap(s)])
	}
}

// Int16Pool reuses quantized sample blocks.
type Int16Pool struct {
	pool sync.Pool
	size int
}

func NewInt16Pool(size int) *Int16Pool {
	return &Int16Pool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]int16, size)
			},
		},
	}
}

func (p *Int16Pool) Get() []int16 {
	return p.pool.Get().([]int16)[:p.size]
}

func (p *Int16Pool) Put(s []int16) {
	if cap(s) >= p.size {
		p.pool.Put(s[:cap(s)])
	}
}
