package packet

import "fmt"

// VarLength marks a message whose total length is carried in bytes 2-3.
const VarLength = -1

// HeaderSize is the id plus the length field of a variable-length message.
const HeaderSize = 4

// Descriptor describes one message type. Name is for diagnostics only.
type Descriptor struct {
	ID     uint16
	Length int
	Name   string
}

// Table is a read-only descriptor lookup built once at startup.
type Table struct {
	byID map[uint16]Descriptor
}

// NewTable builds a table. A zero Length marks an unused id and is left out.
func NewTable(descs ...Descriptor) *Table {
	t := &Table{byID: make(map[uint16]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Length == 0 {
			continue
		}
		t.byID[d.ID] = d
	}
	return t
}

// TableFromLengths builds a table from a dense length array indexed by id,
// with names for the ids that have them, plus ids outside the array.
func TableFromLengths(lengths []int, names map[uint16]string, extra ...Descriptor) *Table {
	descs := make([]Descriptor, 0, len(lengths)+len(extra))
	for id, n := range lengths {
		descs = append(descs, Descriptor{ID: uint16(id), Length: n, Name: names[uint16(id)]})
	}
	return NewTable(append(descs, extra...)...)
}

func (t *Table) Lookup(id uint16) (Descriptor, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// Name returns the diagnostic name of id, or its hex form.
func (t *Table) Name(id uint16) string {
	if d, ok := t.byID[id]; ok && d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("0x%04x", id)
}

func (t *Table) Len() int { return len(t.byID) }

// MinLength is the smallest fixed message length in the table.
func (t *Table) MinLength() int {
	shortest := 0
	for _, d := range t.byID {
		if d.Length == VarLength {
			continue
		}
		if shortest == 0 || d.Length < shortest {
			shortest = d.Length
		}
	}
	return shortest
}
