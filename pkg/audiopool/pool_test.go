package audiopool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatPoolBlockSize(t *testing.T) {
	pool := NewFloatPool(2048)

	block := pool.Get()
	assert.Len(t, block, 2048)
	pool.Put(block)

	// a shortened block comes back at full length
	block = pool.Get()
	pool.Put(block[:3])
	assert.Len(t, pool.Get(), 2048)
}

func TestFloatPoolDropsForeignBlocks(t *testing.T) {
	pool := NewFloatPool(2048)

	// undersized blocks must not poison the pool
	pool.Put(make([]float32, 16))
	assert.Len(t, pool.Get(), 2048)
}

func TestInt16PoolBlockSize(t *testing.T) {
	pool := NewInt16Pool(2048)

	block := pool.Get()
	assert.Len(t, block, 2048)
	pool.Put(block[:10])
	assert.Len(t, pool.Get(), 2048)

	pool.Put(make([]int16, 16))
	assert.Len(t, pool.Get(), 2048)
}
