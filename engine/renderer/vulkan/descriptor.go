package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   gpu.DescriptorPool
}

func (b *Backend) CreateDescriptorPool(budget gpu.DescriptorBudget) (gpu.DescriptorPool, error) {
	var sizes []vk.DescriptorPoolSize
	for _, kind := range []gpu.DescriptorKind{gpu.DescriptorUniformBuffer, gpu.DescriptorCombinedImageSampler} {
		if n := budget.Of(kind); n > 0 {
			sizes = append(sizes, vk.DescriptorPoolSize{
				Type:            toVkDescriptorType(kind),
				DescriptorCount: n,
			})
		}
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       budget.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	var pool vk.DescriptorPool
	err := b.locks.SafeCall(DescriptorManagement, func() error {
		return check("vkCreateDescriptorPool", vk.CreateDescriptorPool(b.device.LogicalDevice, &poolInfo, nil, &pool))
	})
	if err != nil {
		return 0, err
	}
	return b.pools.add(pool), nil
}

func (b *Backend) DestroyDescriptorPool(h gpu.DescriptorPool) {
	pool, ok := b.pools.remove(h)
	if !ok {
		return
	}
	b.dropSets(h)
	_ = b.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(b.device.LogicalDevice, pool, nil)
		return nil
	})
}

func (b *Backend) ResetDescriptorPool(h gpu.DescriptorPool) error {
	pool, ok := b.pools.get(h)
	if !ok {
		return fmt.Errorf("resetting unknown descriptor pool %d", h)
	}
	b.dropSets(h)
	return b.locks.SafeCall(DescriptorManagement, func() error {
		return check("vkResetDescriptorPool", vk.ResetDescriptorPool(b.device.LogicalDevice, pool, 0))
	})
}

// dropSets forgets every set handle allocated from pool.
func (b *Backend) dropSets(pool gpu.DescriptorPool) {
	b.sets.removeWhere(func(set *descriptorSet) bool {
		return set.pool == pool
	})
}

func (b *Backend) AllocateDescriptorSet(h gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	pool, ok := b.pools.get(h)
	if !ok {
		return 0, fmt.Errorf("allocating from unknown descriptor pool %d", h)
	}
	setLayout, ok := b.setLayouts.get(layout)
	if !ok {
		return 0, fmt.Errorf("allocating with unknown set layout %d", layout)
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{setLayout},
	}

	var set vk.DescriptorSet
	err := b.locks.SafeCall(DescriptorManagement, func() error {
		return check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(b.device.LogicalDevice, &allocateInfo, &set))
	})
	if err != nil {
		return 0, err
	}
	return b.sets.add(&descriptorSet{handle: set, pool: h}), nil
}

func (b *Backend) UpdateDescriptorSet(h gpu.DescriptorSet, writes []gpu.DescriptorWrite) error {
	set, ok := b.sets.get(h)
	if !ok {
		return fmt.Errorf("updating unknown descriptor set %d", h)
	}

	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  toVkDescriptorType(w.Kind),
			DescriptorCount: 1,
		}
		switch w.Kind {
		case gpu.DescriptorUniformBuffer:
			buf, ok := b.buffers.get(w.Buffer)
			if !ok {
				return fmt.Errorf("binding %d: unknown buffer %d", w.Binding, w.Buffer)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		case gpu.DescriptorCombinedImageSampler:
			view, ok := b.views.get(w.View)
			if !ok {
				return fmt.Errorf("binding %d: unknown image view %d", w.Binding, w.View)
			}
			sampler, ok := b.samplers.get(w.Sampler)
			if !ok {
				return fmt.Errorf("binding %d: unknown sampler %d", w.Binding, w.Sampler)
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   view.handle,
				ImageLayout: view.layout(),
			}}
		default:
			return fmt.Errorf("binding %d: unsupported descriptor kind %s", w.Binding, w.Kind)
		}
		vkWrites = append(vkWrites, write)
	}

	if len(vkWrites) == 0 {
		return nil
	}
	vk.UpdateDescriptorSets(b.device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}
