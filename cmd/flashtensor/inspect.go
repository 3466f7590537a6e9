package main

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/23skdu/flashtensor/internal/device"
	"github.com/23skdu/flashtensor/internal/tensor"
)

var tracer = otel.Tracer("flashtensor")

type narrowSpec struct {
	dim, start, length int
}

type inspectConfig struct {
	shape    []int
	device   device.Type
	perm     []int
	narrow   *narrowSpec
	registry *device.Registry
}

type layout struct {
	Shape      []int
	Strides    []int
	Offset     int
	Contiguous bool
}

type report struct {
	Base  layout
	View  layout
	Clone layout
	// Matches is true when the clone holds the view's elements in order.
	Matches bool
}

func layoutOf[T tensor.Element](t *tensor.Tensor[T]) layout {
	return layout{
		Shape:      t.Shape(),
		Strides:    t.Strides(),
		Offset:     t.StorageOffset(),
		Contiguous: t.IsContiguous(),
	}
}

// runInspect allocates a tensor of cfg.shape filled with its flat index,
// derives the configured view and clones it.
func runInspect(ctx context.Context, cfg inspectConfig) (report, error) {
	var rep report

	ctx, span := tracer.Start(ctx, "inspect")
	defer span.End()
	span.SetAttributes(
		attribute.IntSlice("shape", cfg.shape),
		attribute.String("device", cfg.device.String()),
	)

	opts := []tensor.Option{tensor.OnDevice(cfg.device)}
	if cfg.registry != nil {
		opts = append(opts, tensor.WithRegistry(cfg.registry))
	}

	_, allocSpan := tracer.Start(ctx, "allocate")
	base, err := tensor.New[float32](cfg.shape, opts...)
	allocSpan.End()
	if err != nil {
		span.RecordError(err)
		return rep, fmt.Errorf("failed to allocate tensor: %w", err)
	}
	defer base.Release()

	data := base.Storage().Data()
	for i := range data {
		data[i] = float32(i)
	}
	rep.Base = layoutOf(base)

	view := base.Copy()
	defer view.Release()

	if cfg.perm != nil {
		p, err := view.Permute(cfg.perm...)
		if err != nil {
			return rep, fmt.Errorf("failed to permute: %w", err)
		}
		view.MoveFrom(p)
	}
	if cfg.narrow != nil {
		n, err := view.Narrow(cfg.narrow.dim, cfg.narrow.start, cfg.narrow.length)
		if err != nil {
			return rep, fmt.Errorf("failed to narrow: %w", err)
		}
		view.MoveFrom(n)
	}
	rep.View = layoutOf(view)

	_, cloneSpan := tracer.Start(ctx, "clone")
	clone, err := view.Clone()
	cloneSpan.End()
	if err != nil {
		span.RecordError(err)
		return rep, fmt.Errorf("failed to clone view: %w", err)
	}
	defer clone.Release()
	rep.Clone = layoutOf(clone)

	want, err := view.Elements()
	if err != nil {
		return rep, err
	}
	rep.Matches = slices.Equal(want, clone.Storage().Data())

	log.Debug().
		Int("refs", base.Storage().Refs()).
		Str("view", view.String()).
		Msg("Inspected tensor")
	return rep, nil
}

// buildRegistry creates the allocators used by the CLI. Pools are returned
// so they can be drained on exit.
func buildRegistry(maxBytes int64, pooled bool) (*device.Registry, []*device.PooledAllocator) {
	allocs := []device.Allocator{
		device.NewHostAllocator(nil, maxBytes),
		device.NewCudaAllocator(nil, vramBudget(maxBytes)),
	}
	if !pooled {
		return device.NewRegistry(allocs...), nil
	}

	pools := make([]*device.PooledAllocator, len(allocs))
	wrapped := make([]device.Allocator, len(allocs))
	for i, a := range allocs {
		pools[i] = device.NewPooledAllocator(a, 8)
		wrapped[i] = pools[i]
	}
	return device.NewRegistry(wrapped...), pools
}

func vramBudget(maxBytes int64) int64 {
	if maxBytes > 0 {
		return maxBytes
	}
	return device.DefaultVRAMBytes
}

func parseInts(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// parseNarrow parses "dim:start:length".
func parseNarrow(s string) (*narrowSpec, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("narrow %q: want dim:start:length", s)
	}
	vals, err := parseInts(strings.Join(parts, ","))
	if err != nil {
		return nil, fmt.Errorf("narrow %q: %w", s, err)
	}
	return &narrowSpec{dim: vals[0], start: vals[1], length: vals[2]}, nil
}

// parseBytes parses a byte size such as 1024, 64MB or 4g.
func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	num := strings.TrimRightFunc(s, unicode.IsLetter)
	unit := strings.ToUpper(s[len(num):])

	var shift uint
	switch unit {
	case "", "B":
	case "K", "KB":
		shift = 10
	case "M", "MB":
		shift = 20
	case "G", "GB":
		shift = 30
	default:
		return 0, fmt.Errorf("byte size %q: unknown unit %q", s, unit)
	}

	v, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("byte size %q: %w", s, err)
	}
	if v < 0 || v > math.MaxInt64>>shift {
		return 0, fmt.Errorf("byte size %q out of range", s)
	}
	return v << shift, nil
}
