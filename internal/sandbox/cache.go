package sandbox

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dop251/goja"
)

// ProgramCache shares compiled programs between runtimes. A goja.Program
// can run concurrently in different runtimes, so one entry serves the pool.
type ProgramCache struct {
	cache *ristretto.Cache[string, *goja.Program]
}

// NewProgramCache creates a cache bounded by maxBytes of script source
func NewProgramCache(maxBytes int64) (*ProgramCache, error) {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *goja.Program]{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("program cache: %w", err)
	}
	return &ProgramCache{cache: c}, nil
}

// Compile returns the cached program for script, compiling it on a miss
func (p *ProgramCache) Compile(script string) (*goja.Program, error) {
	if p == nil {
		return goja.Compile(ScriptName, script, false)
	}
	if prg, ok := p.cache.Get(script); ok {
		return prg, nil
	}

	prg, err := goja.Compile(ScriptName, script, false)
	if err != nil {
		return nil, err
	}
	p.cache.Set(script, prg, int64(len(script))+1)
	return prg, nil
}

// Wait blocks until pending writes are visible to Compile
func (p *ProgramCache) Wait() {
	if p != nil {
		p.cache.Wait()
	}
}

// Hits and misses since creation
func (p *ProgramCache) Stats() (hits, misses uint64) {
	if p == nil || p.cache.Metrics == nil {
		return 0, 0
	}
	return p.cache.Metrics.Hits(), p.cache.Metrics.Misses()
}

func (p *ProgramCache) Close() {
	if p != nil {
		p.cache.Close()
	}
}
