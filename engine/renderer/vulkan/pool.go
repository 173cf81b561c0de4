package vulkan

import "sync"

// LockGroup names a set of Vulkan objects that must be externally
// synchronised together.
type LockGroup uint8

const (
	// The single graphics/present queue.
	QueueManagement LockGroup = iota
	PipelineManagement
	DescriptorManagement
	// The command pool and every buffer allocated from it.
	CommandPoolManagement

	lockGroupCount
)

var lockGroupNames = [lockGroupCount]string{
	QueueManagement:       "queue_management",
	PipelineManagement:    "pipeline_management",
	DescriptorManagement:  "descriptor_management",
	CommandPoolManagement: "command_pool_management",
}

func (g LockGroup) String() string {
	if g < lockGroupCount {
		return lockGroupNames[g]
	}
	return "unknown"
}

// LockPool holds one mutex per group. SafeCall sections never nest.
type LockPool struct {
	locks [lockGroupCount]sync.Mutex
}

func NewLockPool() *LockPool {
	return &LockPool{}
}

// SafeCall runs fn while holding the mutex of group.
func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := &lp.locks[group]
	l.Lock()
	defer l.Unlock()
	return fn()
}
