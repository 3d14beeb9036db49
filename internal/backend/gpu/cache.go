package gpu

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/born-ml/cortex/internal/tensor"
)

// kernelCache compiles each distinct kernel description once per device.
type kernelCache struct {
	device    Device
	templates *templateSet
	log       *logrus.Entry

	mu       sync.Mutex
	programs map[uint64]Program

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newKernelCache(device Device, templates *templateSet, log *logrus.Entry) *kernelCache {
	return &kernelCache{
		device:    device,
		templates: templates,
		log:       log,
		programs:  make(map[uint64]Program),
	}
}

// CacheStats reports kernel cache usage.
type CacheStats struct {
	Programs int
	Hits     uint64
	Misses   uint64
}

func (c *kernelCache) stats() CacheStats {
	c.mu.Lock()
	n := len(c.programs)
	c.mu.Unlock()
	return CacheStats{Programs: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// get returns the program for desc, generating and compiling it on first use.
func (c *kernelCache) get(op string, desc KernelDesc) (Program, error) {
	tmpl, err := c.templates.get(desc.Kernel)
	if err != nil {
		return nil, tensor.WrapError(op, tensor.ErrDeviceExecution, err)
	}
	desc.Template = tmpl.fingerprint

	key, err := hashstructure.Hash(desc, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, tensor.WrapError(op, tensor.ErrDeviceExecution, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[key]; ok {
		c.hits.Add(1)
		kernelCacheLookups.WithLabelValues(desc.Kernel, "hit").Inc()
		return p, nil
	}
	c.misses.Add(1)
	kernelCacheLookups.WithLabelValues(desc.Kernel, "miss").Inc()

	p, err := c.compile(desc, tmpl)
	if err != nil {
		if errors.Is(err, tensor.ErrUnsupported) {
			return nil, err
		}
		return nil, tensor.WrapError(op, tensor.ErrDeviceExecution, err)
	}
	c.programs[key] = p
	return p, nil
}

func (c *kernelCache) compile(desc KernelDesc, tmpl *kernelTemplate) (Program, error) {
	_, span := tracer.Start(context.Background(), "gpu.compile")
	defer span.End()
	span.SetAttributes(
		attribute.String("kernel", desc.Name()),
		attribute.Int("workgroup_size", desc.WorkgroupSize),
	)

	start := time.Now()
	code, err := tmpl.render(desc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	p, err := c.device.Compile(KernelSource{Desc: desc, Code: code})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	elapsed := time.Since(start)
	kernelCompileSeconds.WithLabelValues(desc.Kernel).Observe(elapsed.Seconds())
	c.log.WithFields(logrus.Fields{
		"kernel":  desc.Name(),
		"origin":  tmpl.origin,
		"elapsed": elapsed,
	}).Debug("compiled kernel")
	return p, nil
}

func (c *kernelCache) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, p := range c.programs {
		p.Release()
		delete(c.programs, key)
	}
}
