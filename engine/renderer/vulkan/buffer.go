package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

var (
	hostVisibleMemory = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	deviceLocalMemory = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
)

type buffer struct {
	handle      vk.Buffer
	memory      vk.DeviceMemory
	size        uint64
	hostVisible bool
}

func (b *Backend) newBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*buffer, error) {
	dev := b.device.LogicalDevice
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if err := check("vkCreateBuffer", vk.CreateBuffer(dev, &bufferInfo, nil, &handle)); err != nil {
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, handle, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := b.device.allocate(memoryRequirements, props)
	if err != nil {
		vk.DestroyBuffer(dev, handle, nil)
		return nil, fmt.Errorf("allocating buffer memory: %w", err)
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(dev, handle, memory, 0)); err != nil {
		vk.DestroyBuffer(dev, handle, nil)
		vk.FreeMemory(dev, memory, nil)
		return nil, err
	}

	return &buffer{
		handle:      handle,
		memory:      memory,
		size:        size,
		hostVisible: props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0,
	}, nil
}

func (buf *buffer) destroy(dev vk.Device) {
	vk.DestroyBuffer(dev, buf.handle, nil)
	vk.FreeMemory(dev, buf.memory, nil)
	buf.handle = nil
	buf.memory = nil
}

// write maps the range, copies data in and unmaps. The memory is coherent so
// no flush is needed.
func (buf *buffer) write(dev vk.Device, offset uint64, data []byte) error {
	if !buf.hostVisible {
		return fmt.Errorf("writing to a buffer that is not host visible")
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("writing %d bytes at %d overflows buffer of %d bytes", len(data), offset, buf.size)
	}
	if len(data) == 0 {
		return nil
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(dev, buf.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr)); err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(dev, buf.memory)
	return nil
}

func (b *Backend) CreateBuffer(size uint64, usage gpu.BufferUsage, hostVisible bool) (gpu.Buffer, error) {
	props := deviceLocalMemory
	if hostVisible {
		props = hostVisibleMemory
	}
	buf, err := b.newBuffer(size, toVkBufferUsage(usage), props)
	if err != nil {
		return 0, err
	}
	return b.buffers.add(buf), nil
}

func (b *Backend) DestroyBuffer(h gpu.Buffer) {
	if buf, ok := b.buffers.remove(h); ok {
		buf.destroy(b.device.LogicalDevice)
	}
}

func (b *Backend) WriteBuffer(h gpu.Buffer, offset uint64, data []byte) error {
	buf, ok := b.buffers.get(h)
	if !ok {
		return fmt.Errorf("writing to unknown buffer %d", h)
	}
	return buf.write(b.device.LogicalDevice, offset, data)
}

// UploadBuffer copies data into a device-local buffer through a staging
// buffer.
func (b *Backend) UploadBuffer(dst gpu.Buffer, data []byte) error {
	buf, ok := b.buffers.get(dst)
	if !ok {
		return fmt.Errorf("uploading to unknown buffer %d", dst)
	}
	if uint64(len(data)) > buf.size {
		return fmt.Errorf("uploading %d bytes into buffer of %d bytes", len(data), buf.size)
	}

	staging, err := b.newBuffer(uint64(len(data)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostVisibleMemory)
	if err != nil {
		return fmt.Errorf("creating staging buffer: %w", err)
	}
	defer staging.destroy(b.device.LogicalDevice)
	if err := staging.write(b.device.LogicalDevice, 0, data); err != nil {
		return err
	}

	return b.singleUse(func(cb vk.CommandBuffer) {
		region := vk.BufferCopy{Size: vk.DeviceSize(len(data))}
		vk.CmdCopyBuffer(cb, staging.handle, buf.handle, 1, []vk.BufferCopy{region})
	})
}
