package arena

type AllocateChunkCallback func(
	arena *Arena,
	chunkID int,
	memory []byte,
	userData interface{},
)

type FreeChunkCallback func(
	arena *Arena,
	chunkID int,
	memory []byte,
	userData interface{},
)

type MemoryCallbackOptions struct {
	Allocate AllocateChunkCallback
	Free     FreeChunkCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Arena     *Arena
}

func (c *memoryCallbacks) Allocate(
	chunkID int,
	memory []byte,
) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Arena, chunkID, memory, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(
	chunkID int,
	memory []byte,
) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Arena, chunkID, memory, c.Callbacks.UserData)
	}
}
