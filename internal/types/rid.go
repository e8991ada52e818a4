package types

import "fmt"

// Rid identifies a record in a table heap: spec.md's "(page_no,
// slot_no)", stable across updates, invalidated on delete.
type Rid struct {
	PageNo uint32
	SlotNo uint32
}

func (r Rid) String() string { return fmt.Sprintf("(%d,%d)", r.PageNo, r.SlotNo) }

// Iid locates a key position inside a B+-tree: spec.md's glossary
// entry, structurally identical to Rid but kept as a distinct type
// since the two are never interchangeable (an Iid's SlotNo indexes
// into a leaf's key array, not a heap page's slot bitmap).
type Iid struct {
	PageNo uint32
	SlotNo uint32
}
