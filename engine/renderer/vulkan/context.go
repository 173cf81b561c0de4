package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// SurfaceSource is the window a surface is created for. *glfw.Window
// satisfies it.
type SurfaceSource interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetRequiredInstanceExtensions() []string
	GetFramebufferSize() (int, int)
}

type Options struct {
	AppName    string
	Validation bool
	// Directory holding <pass>.vert.spv and <pass>.frag.spv.
	ShaderDir string
	Window    SurfaceSource
}

// Backend implements gpu.Device on top of a single Vulkan device with one
// graphics queue that also presents.
type Backend struct {
	options Options
	locks   *LockPool

	instance    vk.Instance
	debugReport vk.DebugReportCallback
	device      *Device
	primary     gpu.Surface

	surfaces     table[gpu.Surface, vk.Surface]
	swapchains   table[gpu.Swapchain, *swapchain]
	images       table[gpu.Image, *image]
	views        table[gpu.ImageView, *imageView]
	samplers     table[gpu.Sampler, vk.Sampler]
	framebuffers table[gpu.Framebuffer, vk.Framebuffer]
	renderPasses table[gpu.RenderPass, vk.RenderPass]
	pipelines    table[gpu.Pipeline, vk.Pipeline]
	layouts      table[gpu.PipelineLayout, vk.PipelineLayout]
	setLayouts   table[gpu.DescriptorSetLayout, vk.DescriptorSetLayout]
	pools        table[gpu.DescriptorPool, vk.DescriptorPool]
	sets         table[gpu.DescriptorSet, *descriptorSet]
	commands     table[gpu.CommandBuffer, vk.CommandBuffer]
	buffers      table[gpu.Buffer, *buffer]
	fences       table[gpu.Fence, vk.Fence]
	semaphores   table[gpu.Semaphore, vk.Semaphore]
}

var _ gpu.Device = (*Backend)(nil)

// New loads the Vulkan loader through GLFW, creates the instance, a surface
// for the window and the logical device.
func New(opts Options) (*Backend, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	b := &Backend{
		options: opts,
		locks:   NewLockPool(),
	}

	if err := b.createInstance(); err != nil {
		return nil, err
	}
	if opts.Validation {
		if err := b.createDebugReport(); err != nil {
			b.Close()
			return nil, err
		}
	}

	surface, err := b.CreateSurface()
	if err != nil {
		b.Close()
		return nil, err
	}
	b.primary = surface

	vs, _ := b.surfaces.get(surface)
	device, err := DeviceCreate(b.instance, vs)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.device = device

	return b, nil
}

// Surface returns the surface created together with the device.
func (b *Backend) Surface() gpu.Surface {
	return b.primary
}

func (b *Backend) CreateSurface() (gpu.Surface, error) {
	ptr, err := b.options.Window.CreateWindowSurface(b.instance, nil)
	if err != nil {
		return 0, fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	core.LogDebug("Vulkan surface created.")
	return b.surfaces.add(vk.SurfaceFromPointer(ptr)), nil
}

func (b *Backend) DestroySurface(s gpu.Surface) {
	if vs, ok := b.surfaces.remove(s); ok {
		vk.DestroySurface(b.instance, vs, nil)
	}
	if s == b.primary {
		b.primary = 0
	}
}

// Close destroys whatever the renderer left behind, then the device and
// the instance. Leftovers are logged since they point at a missing Destroy.
func (b *Backend) Close() {
	if b.device != nil {
		vk.DeviceWaitIdle(b.device.LogicalDevice)
		b.releaseLeftovers()
		b.device.Destroy()
		b.device = nil
	}
	for _, vs := range b.surfaces.drain() {
		vk.DestroySurface(b.instance, vs, nil)
	}
	if b.debugReport != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.instance, b.debugReport, nil)
		b.debugReport = vk.NullDebugReportCallback
	}
	if b.instance != nil {
		vk.DestroyInstance(b.instance, nil)
		b.instance = nil
	}
	core.LogInfo("Vulkan backend shut down.")
}

func (b *Backend) releaseLeftovers() {
	dev := b.device.LogicalDevice
	leaked := 0
	for _, sc := range b.swapchains.drain() {
		vk.DestroySwapchain(dev, sc.handle, nil)
		leaked++
	}
	for _, fb := range b.framebuffers.drain() {
		vk.DestroyFramebuffer(dev, fb, nil)
		leaked++
	}
	for _, v := range b.views.drain() {
		vk.DestroyImageView(dev, v.handle, nil)
		leaked++
	}
	for _, img := range b.images.drain() {
		if img.owned {
			img.destroy(dev)
			leaked++
		}
	}
	for _, s := range b.samplers.drain() {
		vk.DestroySampler(dev, s, nil)
		leaked++
	}
	for _, buf := range b.buffers.drain() {
		buf.destroy(dev)
		leaked++
	}
	b.sets.drain()
	for _, p := range b.pools.drain() {
		vk.DestroyDescriptorPool(dev, p, nil)
		leaked++
	}
	for _, p := range b.pipelines.drain() {
		vk.DestroyPipeline(dev, p, nil)
		leaked++
	}
	for _, l := range b.layouts.drain() {
		vk.DestroyPipelineLayout(dev, l, nil)
		leaked++
	}
	for _, l := range b.setLayouts.drain() {
		vk.DestroyDescriptorSetLayout(dev, l, nil)
		leaked++
	}
	for _, rp := range b.renderPasses.drain() {
		vk.DestroyRenderPass(dev, rp, nil)
		leaked++
	}
	// Command buffers go away with the pool.
	b.commands.drain()
	for _, f := range b.fences.drain() {
		vk.DestroyFence(dev, f, nil)
		leaked++
	}
	for _, s := range b.semaphores.drain() {
		vk.DestroySemaphore(dev, s, nil)
		leaked++
	}
	if leaked > 0 {
		core.LogWarn("Vulkan backend released %d leftover objects", leaked)
	}
}

func (b *Backend) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(b.options.AppName),
		PEngineName:        VulkanSafeString("Penumbra"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// GLFW already reports VK_KHR_surface among the required extensions.
	extensions := b.options.Window.GetRequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	layers := []string{}
	if b.options.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		if err := checkLayers(layers); err != nil {
			return err
		}
	}
	core.LogDebug("Required instance extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return err
	}
	b.instance = instance

	core.LogInfo("Vulkan Instance created.")
	return nil
}

// checkLayers verifies every required validation layer is installed.
func checkLayers(required []string) error {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}

	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if vk.ToString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (b *Backend) createDebugReport() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(b.instance, &debugCreateInfo, nil, &dbg)); err != nil {
		return fmt.Errorf("vk.CreateDebugReportCallback failed with %w", err)
	}
	b.debugReport = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
