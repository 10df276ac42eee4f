package kernel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/potential"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/san-kum/mdsim/internal/kernel")

type Stats struct {
	Hits     int64
	Misses   int64
	Compiles int64
	Failures int64
}

// Cache maps (structural identity, launch configuration) to compiled
// kernels. Concurrent requests for the same key compile once. Failed
// compilations are never stored.
type Cache struct {
	mu      sync.RWMutex
	kernels map[uint64][]entry
	group   singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	compiles atomic.Int64
	failures atomic.Int64
}

type entry struct {
	key    string
	kernel Kernel
}

func NewCache() *Cache {
	return &Cache{kernels: make(map[uint64][]entry)}
}

func cacheKey(identity string, launch compute.LaunchConfig) string {
	return identity + "@" + launch.String()
}

// GetOrCompile returns the kernel for spec under launch, compiling it on
// first use.
func (c *Cache) GetOrCompile(spec potential.Spec, launch compute.LaunchConfig) (Kernel, error) {
	if err := launch.Validate(); err != nil {
		return nil, err
	}
	id, err := potential.Identity(spec)
	if err != nil {
		c.failures.Add(1)
		return nil, &dynamo.KernelCompilationError{Spec: spec.Name(), Expr: spec.Expression(), Err: err}
	}
	key := cacheKey(id, launch)
	hash := xxhash.Sum64String(key)

	if k := c.lookup(hash, key); k != nil {
		c.hits.Add(1)
		return k, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		if k := c.lookup(hash, key); k != nil {
			return k, nil
		}
		k, err := c.compile(spec, launch)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.kernels[hash] = append(c.kernels[hash], entry{key: key, kernel: k})
		c.mu.Unlock()
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Kernel), nil
}

func (c *Cache) lookup(hash uint64, key string) Kernel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.kernels[hash] {
		if e.key == key {
			return e.kernel
		}
	}
	return nil
}

func (c *Cache) compile(spec potential.Spec, launch compute.LaunchConfig) (Kernel, error) {
	_, span := tracer.Start(context.Background(), "kernel.compile")
	defer span.End()
	span.SetAttributes(
		attribute.String("interaction", spec.Name()),
		attribute.String("kind", spec.Kind().String()),
		attribute.String("launch", launch.String()),
	)

	fail := func(err error) error {
		c.failures.Add(1)
		span.SetStatus(codes.Error, err.Error())
		logrus.Debugf("kernel: compile %s %q failed: %v", spec.Kind(), spec.Name(), err)
		return &dynamo.KernelCompilationError{Spec: spec.Name(), Expr: spec.Expression(), Err: err}
	}

	lw, err := potential.Lower(spec)
	if err != nil {
		return nil, fail(err)
	}
	k, err := compile(lw, launch)
	if err != nil {
		return nil, fail(err)
	}

	c.compiles.Add(1)
	logrus.Debugf("kernel: compiled %s %q for %s", spec.Kind(), spec.Name(), launch)
	return k, nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, es := range c.kernels {
		n += len(es)
	}
	return n
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Compiles: c.compiles.Load(),
		Failures: c.failures.Load(),
	}
}

func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernels = make(map[uint64][]entry)
}

// IsCompilationError reports whether err came from a failed compilation.
func IsCompilationError(err error) bool {
	return errors.Is(err, dynamo.ErrKernelCompilation)
}
