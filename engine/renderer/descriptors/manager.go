package descriptors

import (
	"errors"
	"fmt"
	"math"

	"github.com/spaghettifunk/penumbra/engine/containers"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// Writer returns the bindings of the set at idx.
type Writer[I any] func(idx I) ([]gpu.DescriptorWrite, error)

// Manager owns one fixed-budget descriptor pool and a tensor of the sets
// allocated from it. Every Reset rebuilds the whole tensor; handles handed
// out before a Reset must not be used afterwards.
type Manager[I Index[I]] struct {
	name   string
	device gpu.DescriptorAllocator
	budget gpu.DescriptorBudget
	pool   gpu.Owned[gpu.DescriptorPool]

	sets       containers.Tensor[gpu.DescriptorSet]
	shape      I
	generation uint64
}

func NewManager[I Index[I]](name string, device gpu.DescriptorAllocator, budget gpu.DescriptorBudget) (*Manager[I], error) {
	pool, err := device.CreateDescriptorPool(budget)
	if err != nil {
		return nil, fmt.Errorf("creating %s descriptor pool: %w", name, err)
	}
	return &Manager[I]{
		name:   name,
		device: device,
		budget: budget,
		pool:   gpu.Own(pool, device.DestroyDescriptorPool),
	}, nil
}

// Reset reclaims the whole pool, reshapes the tensor to shape and allocates
// and writes one set per index tuple in linear order.
func (m *Manager[I]) Reset(layout gpu.DescriptorSetLayout, shape I, write Writer[I]) error {
	if !m.pool.HasValue() {
		return fmt.Errorf("%s descriptor manager used after destroy", m.name)
	}
	extents := shape.Coords()
	count := setCount(extents)
	if count > uint64(m.budget.MaxSets) {
		return m.budgetError(&BudgetError{Category: "sets", Requested: uint32(min(count, math.MaxUint32)), Budget: m.budget.MaxSets})
	}
	total := int(count)

	if err := m.device.ResetDescriptorPool(m.pool.Get()); err != nil {
		return fmt.Errorf("resetting %s descriptor pool: %w", m.name, err)
	}
	m.generation++
	m.shape = shape
	m.sets.Reset(extents...)

	used := map[gpu.DescriptorKind]uint32{}
	var zero I
	err := m.sets.Each(func(coords []int, _ gpu.DescriptorSet) error {
		idx := zero.FromCoords(coords)
		writes, err := write(idx)
		if err != nil {
			return fmt.Errorf("%s bindings at %s: %w", m.name, idx, err)
		}
		for _, w := range writes {
			used[w.Kind]++
			if used[w.Kind] > m.budget.Of(w.Kind) {
				return m.budgetError(&BudgetError{Category: w.Kind.String() + "s", Requested: used[w.Kind], Budget: m.budget.Of(w.Kind)})
			}
		}

		set, err := m.device.AllocateDescriptorSet(m.pool.Get(), layout)
		if errors.Is(err, gpu.ErrOutOfPoolMemory) {
			return m.budgetError(&BudgetError{Category: "sets", Requested: uint32(total), Budget: m.budget.MaxSets, Exhausted: true})
		}
		if err != nil {
			return fmt.Errorf("allocating %s descriptor set at %s: %w", m.name, idx, err)
		}
		if err := m.device.UpdateDescriptorSet(set, writes); err != nil {
			return fmt.Errorf("writing %s descriptor set at %s: %w", m.name, idx, err)
		}
		return m.sets.Set(set, coords...)
	})
	if err != nil {
		m.sets.Clear()
		m.shape = zero
		return err
	}
	core.LogDebug("%s descriptors reset to %v (%d sets)", m.name, extents, total)
	return nil
}

// setCount is the product of extents, saturated just above MaxUint32 so a
// huge shape cannot wrap around into the budget.
func setCount(extents []int) uint64 {
	count := uint64(1)
	for _, e := range extents {
		if e <= 0 {
			return 0
		}
	}
	for _, e := range extents {
		if count > math.MaxUint32/uint64(e) {
			return math.MaxUint32 + 1
		}
		count *= uint64(e)
	}
	return count
}

func (m *Manager[I]) budgetError(err *BudgetError) error {
	core.LogError("%s: %s", m.name, err)
	return err
}

// At returns the set for idx under the current shape.
func (m *Manager[I]) At(idx I) (gpu.DescriptorSet, error) {
	set, err := m.sets.At(idx.Coords()...)
	if err != nil {
		return 0, fmt.Errorf("%s descriptor set %s: %w", m.name, idx, err)
	}
	return set, nil
}

func (m *Manager[I]) Shape() I {
	return m.shape
}

func (m *Manager[I]) Len() int {
	return m.sets.Len()
}

// Generation counts the resets so far.
func (m *Manager[I]) Generation() uint64 {
	return m.generation
}

// Release drops every set back into the pool without destroying it.
func (m *Manager[I]) Release() error {
	var zero I
	m.sets.Clear()
	m.shape = zero
	if !m.pool.HasValue() {
		return nil
	}
	if err := m.device.ResetDescriptorPool(m.pool.Get()); err != nil {
		return fmt.Errorf("resetting %s descriptor pool: %w", m.name, err)
	}
	return nil
}

func (m *Manager[I]) Destroy() {
	var zero I
	m.sets.Clear()
	m.shape = zero
	m.pool.Destroy()
}
