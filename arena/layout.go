package arena

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkalloc/memutils"
)

type elementLayout struct {
	size      int
	alignment uint
	err       error
}

// layoutFor checks whether values of elementType can be stored in this arena's chunks, caching the
// result so that rebinding between a handful of element types stays cheap
func (a *Arena) layoutFor(elementType reflect.Type) elementLayout {
	layout, ok := a.layouts.Get(elementType)
	if ok {
		return layout
	}

	layout = elementLayout{
		size:      int(elementType.Size()),
		alignment: uint(elementType.Align()),
	}

	if containsPointers(elementType) {
		layout.err = errors.Wrapf(memutils.ErrPointerElement, "%s", elementType)
	} else if layout.alignment > a.alignment {
		layout.err = errors.Wrapf(memutils.ErrUnalignedElement, "%s has alignment %d but the arena aligns to %d", elementType, layout.alignment, a.alignment)
	}

	a.layouts.Put(elementType, layout)
	return layout
}

func containsPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func,
		reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && containsPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if containsPointers(t.Field(i).Type) {
				return true
			}
		}
	}

	return false
}
