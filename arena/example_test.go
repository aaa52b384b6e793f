package arena_test

import (
	"fmt"

	"github.com/vkngwrapper/chunkalloc/arena"
)

// growable is a minimal dynamic array whose storage lives in an arena
type growable struct {
	handle *arena.Handle[int32]
	items  []int32
	length int
}

func (g *growable) push(value int32) error {
	if g.length == len(g.items) {
		capacity := 2 * len(g.items)
		if capacity == 0 {
			capacity = 2
		}

		items := g.handle.AllocateSlice(capacity)
		if items == nil {
			return fmt.Errorf("cannot grow to %d items", capacity)
		}
		copy(items, g.items[:g.length])

		if err := g.handle.DeallocateSlice(g.items); err != nil {
			return err
		}
		g.items = items
	}

	g.handle.Construct(&g.items[g.length], value)
	g.length++
	return nil
}

func Example() {
	ints, err := arena.NewHandle[int32](nil, arena.CreateOptions{})
	if err != nil {
		panic(err)
	}

	values := ints.AllocateSlice(5)
	for i := range values {
		ints.Construct(&values[i], int32(i*i))
	}
	fmt.Println(values)

	floats, err := arena.Rebind[float64](ints)
	if err != nil {
		panic(err)
	}
	fmt.Println(arena.SameArena(ints, floats), ints.RefCount())

	if err := floats.Release(); err != nil {
		panic(err)
	}
	fmt.Println(ints.RefCount())

	if err := ints.DeallocateSlice(values); err != nil {
		panic(err)
	}
	fmt.Println(ints.Arena().CalculateStatistics().AllocationCount)

	if err := ints.Release(); err != nil {
		panic(err)
	}
	fmt.Println(ints.Arena().IsDestroyed())

	// Output:
	// [0 1 4 9 16]
	// true 2
	// 1
	// 0
	// true
}

func ExampleHandle_AllocateSlice() {
	handle, err := arena.NewHandle[int32](nil, arena.CreateOptions{ChunkSize: 256})
	if err != nil {
		panic(err)
	}

	vector := &growable{handle: handle}
	for i := int32(1); i <= 10; i++ {
		if err := vector.push(i * 10); err != nil {
			panic(err)
		}
	}
	fmt.Println(vector.items[:vector.length], len(vector.items))

	if err := handle.DeallocateSlice(vector.items); err != nil {
		panic(err)
	}
	if err := handle.Release(); err != nil {
		panic(err)
	}

	// Output:
	// [10 20 30 40 50 60 70 80 90 100] 16
}
