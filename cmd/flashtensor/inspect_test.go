package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/flashtensor/internal/device"
	"github.com/23skdu/flashtensor/internal/tensor"
)

func TestRunInspect(t *testing.T) {
	registry, pools := buildRegistry(0, true)
	defer func() {
		for _, p := range pools {
			p.Drain()
		}
	}()

	t.Run("permuted view", func(t *testing.T) {
		rep, err := runInspect(context.Background(), inspectConfig{
			shape:    []int{2, 3, 4},
			device:   device.CPU,
			perm:     []int{0, 2, 1},
			registry: registry,
		})
		require.NoError(t, err)

		assert.Equal(t, []int{12, 4, 1}, rep.Base.Strides)
		assert.True(t, rep.Base.Contiguous)
		assert.Equal(t, []int{2, 4, 3}, rep.View.Shape)
		assert.Equal(t, []int{12, 1, 4}, rep.View.Strides)
		assert.False(t, rep.View.Contiguous)
		assert.Equal(t, []int{12, 3, 1}, rep.Clone.Strides)
		assert.True(t, rep.Clone.Contiguous)
		assert.True(t, rep.Matches)
	})

	t.Run("narrowed view on cuda", func(t *testing.T) {
		rep, err := runInspect(context.Background(), inspectConfig{
			shape:    []int{4, 4},
			device:   device.CUDA,
			narrow:   &narrowSpec{dim: 0, start: 1, length: 2},
			registry: registry,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, rep.View.Offset)
		assert.True(t, rep.View.Contiguous)
		assert.Equal(t, 0, rep.Clone.Offset)
		assert.True(t, rep.Matches)
	})

	t.Run("bad permutation", func(t *testing.T) {
		_, err := runInspect(context.Background(), inspectConfig{
			shape:    []int{2, 2},
			perm:     []int{0, 0},
			registry: registry,
		})
		require.ErrorIs(t, err, tensor.ErrInvalidView)
	})

	t.Run("over the limit", func(t *testing.T) {
		small, _ := buildRegistry(64, false)
		_, err := runInspect(context.Background(), inspectConfig{
			shape:    []int{100},
			registry: small,
		})
		require.ErrorIs(t, err, tensor.ErrAllocationFailure)
	})
}

func TestParseInts(t *testing.T) {
	got, err := parseInts("2, 3,4")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, got)

	got, err = parseInts("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseInts("2,x")
	assert.Error(t, err)
}

func TestParseNarrow(t *testing.T) {
	n, err := parseNarrow("1:0:2")
	require.NoError(t, err)
	assert.Equal(t, &narrowSpec{dim: 1, start: 0, length: 2}, n)

	n, err = parseNarrow("")
	require.NoError(t, err)
	assert.Nil(t, n)

	_, err = parseNarrow("1:2")
	assert.Error(t, err)
}

func TestParseBytes(t *testing.T) {
	for in, want := range map[string]int64{
		"":      0,
		"0":     0,
		"1024":  1024,
		"512B":  512,
		"64MB":  64 << 20,
		"4GB":   4 << 30,
		"2k":    2 << 10,
		" 3 M ": 3 << 20,
	} {
		got, err := parseBytes(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"abc", "12TB", "-5MB", "9999999999999GB", "MB"} {
		_, err := parseBytes(in)
		assert.Error(t, err, in)
	}
}
