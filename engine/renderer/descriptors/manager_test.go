package descriptors

import (
	"errors"
	"math"
	"testing"

	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu/gputest"
)

var defaultBudget = gpu.DescriptorBudget{MaxSets: 128, UniformBuffers: 128, CombinedImageSamplers: 128}

func newLayout(t *testing.T, dev *gputest.Device) gpu.DescriptorSetLayout {
	t.Helper()
	pass, err := dev.CreateRenderPass(gpu.PassGBuffer, gpu.FormatR8G8B8A8Unorm, gpu.FormatD32Sfloat)
	if err != nil {
		t.Fatal(err)
	}
	set, err := dev.CreatePipeline(gpu.PassGBuffer, pass)
	if err != nil {
		t.Fatal(err)
	}
	return set.SetLayout
}

func uniformPerImage(idx MainIndex) ([]gpu.DescriptorWrite, error) {
	return []gpu.DescriptorWrite{gpu.UniformWrite(0, gpu.Buffer(1000+idx.Image), 64)}, nil
}

func TestResetAllocatesDistinctSets(t *testing.T) {
	dev := gputest.New()
	layout := newLayout(t, dev)
	m, err := NewManager[MainIndex]("main", dev, defaultBudget)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Destroy()

	if err := m.Reset(layout, MainIndex{Instance: 2, Unit: 3, Image: 2}, uniformPerImage); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.Len() != 12 {
		t.Fatalf("Len = %d, want 12", m.Len())
	}

	seen := make(map[gpu.DescriptorSet]MainIndex)
	var old []gpu.DescriptorSet
	for s := ImageAxis(0); s < 2; s++ {
		for i := InstanceAxis(0); i < 2; i++ {
			for u := UnitAxis(0); u < 3; u++ {
				idx := MainIndex{Instance: i, Unit: u, Image: s}
				set, err := m.At(idx)
				if err != nil {
					t.Fatalf("At(%s): %v", idx, err)
				}
				if set == 0 {
					t.Fatalf("At(%s) returned the null set", idx)
				}
				if prev, dup := seen[set]; dup {
					t.Fatalf("At(%s) and At(%s) share set %d", idx, prev, set)
				}
				seen[set] = idx
				old = append(old, set)

				writes := dev.DescriptorWrites(set)
				if len(writes) != 1 || writes[0].Buffer != gpu.Buffer(1000+s) {
					t.Errorf("set at %s bound to %v, want buffer %d", idx, writes, 1000+s)
				}
			}
		}
	}

	if err := m.Reset(layout, MainIndex{Instance: 1, Unit: 1, Image: 1}, uniformPerImage); err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if m.Len() != 1 || m.Generation() != 2 {
		t.Fatalf("Len = %d, Generation = %d; want 1 and 2", m.Len(), m.Generation())
	}
	for _, set := range old {
		if dev.SetIsLive(set) {
			t.Errorf("set %d from the previous shape is still live", set)
		}
	}
	if _, err := m.At(MainIndex{Instance: 1}); !errors.Is(err, core.ErrIndexOutOfRange) {
		t.Fatalf("At outside the new shape error = %v, want ErrIndexOutOfRange", err)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("device violations: %v", v)
	}
}

func TestResetVisitsInLinearOrder(t *testing.T) {
	dev := gputest.New()
	layout := newLayout(t, dev)
	m, err := NewManager[ShadowIndex]("shadow", dev, defaultBudget)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	var visited []ShadowIndex
	err = m.Reset(layout, ShadowIndex{Light: 2, Model: 1, Unit: 1, Image: 2}, func(idx ShadowIndex) ([]gpu.DescriptorWrite, error) {
		visited = append(visited, idx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	want := []ShadowIndex{
		{Light: 0, Image: 0},
		{Light: 1, Image: 0},
		{Light: 0, Image: 1},
		{Light: 1, Image: 1},
	}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visit %d = %s, want %s", i, visited[i], want[i])
		}
	}
}

func TestResetBudgetExceeded(t *testing.T) {
	tests := []struct {
		name     string
		budget   gpu.DescriptorBudget
		category string
		budgeted uint32
	}{
		{"sets", gpu.DescriptorBudget{MaxSets: 4, UniformBuffers: 128, CombinedImageSamplers: 128}, "sets", 4},
		{"uniforms", gpu.DescriptorBudget{MaxSets: 128, UniformBuffers: 5, CombinedImageSamplers: 128}, "uniform buffers", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := gputest.New()
			layout := newLayout(t, dev)
			m, err := NewManager[MainIndex]("main", dev, tt.budget)
			if err != nil {
				t.Fatalf("NewManager: %v", err)
			}
			err = m.Reset(layout, MainIndex{Instance: 2, Unit: 3, Image: 1}, uniformPerImage)
			if !errors.Is(err, core.ErrConfiguration) {
				t.Fatalf("Reset error = %v, want ErrConfiguration", err)
			}
			var be *BudgetError
			if !errors.As(err, &be) {
				t.Fatalf("Reset error %v is not a BudgetError", err)
			}
			if be.Category != tt.category || be.Budget != tt.budgeted || be.Requested <= be.Budget {
				t.Fatalf("BudgetError = %+v", be)
			}
			if m.Len() != 0 {
				t.Fatalf("failed Reset left %d sets", m.Len())
			}
		})
	}
}

func TestResetRejectsShapeLargerThanUint32(t *testing.T) {
	dev := gputest.New()
	layout := newLayout(t, dev)
	m, err := NewManager[MainIndex]("main", dev, defaultBudget)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	calls := 0
	err = m.Reset(layout, MainIndex{Instance: 65536, Unit: 65536, Image: 1}, func(MainIndex) ([]gpu.DescriptorWrite, error) {
		calls++
		return nil, nil
	})
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("Reset error = %v, want ErrConfiguration", err)
	}
	var be *BudgetError
	if !errors.As(err, &be) || be.Requested != math.MaxUint32 {
		t.Fatalf("BudgetError = %+v", be)
	}
	if calls != 0 || m.Len() != 0 {
		t.Fatalf("rejected Reset wrote %d sets, holds %d", calls, m.Len())
	}
}

func TestSetCount(t *testing.T) {
	tests := []struct {
		extents []int
		want    uint64
	}{
		{[]int{2, 3, 4}, 24},
		{[]int{65536, 0, 65536}, 0},
		{[]int{65536, 65536, 1}, math.MaxUint32 + 1},
		{[]int{math.MaxUint32, 1}, math.MaxUint32},
	}
	for _, tt := range tests {
		if got := setCount(tt.extents); got != tt.want {
			t.Errorf("setCount(%v) = %d, want %d", tt.extents, got, tt.want)
		}
	}
}

func TestResetDeviceExhaustion(t *testing.T) {
	dev := gputest.New()
	dev.PoolLimit = 3
	layout := newLayout(t, dev)
	m, err := NewManager[LightingIndex]("lighting", dev, defaultBudget)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	err = m.Reset(layout, LightingIndex{Light: 2, Image: 2}, func(LightingIndex) ([]gpu.DescriptorWrite, error) {
		return nil, nil
	})
	if !errors.Is(err, core.ErrResourceExhaustion) {
		t.Fatalf("Reset error = %v, want ErrResourceExhaustion", err)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	dev := gputest.New()
	m, err := NewManager[LightingIndex]("lighting", dev, defaultBudget)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Destroy()
	m.Destroy()
	if n := dev.Live("DescriptorPool"); n != 0 {
		t.Fatalf("%d pools alive after Destroy", n)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("device violations: %v", v)
	}
	if err := m.Reset(0, LightingIndex{Light: 1, Image: 1}, nil); err == nil {
		t.Fatal("Reset after Destroy succeeded")
	}
}
