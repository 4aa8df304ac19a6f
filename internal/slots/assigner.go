// Package slots maps photos to fixed display positions in the 3D collage
// scene. Assignments are sticky: a photo keeps its slot for as long as it
// exists, no matter how the rest of the collection churns, so unrelated
// photos never jump around on screen when something is uploaded or deleted.
package slots

import "photo-collage-app/internal/models"

// Assigner reconciles the known photo set against a fixed number of display
// slots. It is pure in-memory state with no locking; the sync session calls
// it from a single goroutine.
type Assigner struct {
	byPhoto map[string]int
	bySlot  map[int]string
}

func NewAssigner() *Assigner {
	return &Assigner{
		byPhoto: make(map[string]int),
		bySlot:  make(map[int]string),
	}
}

// Assign reconciles the incoming photo list against the current assignments
// and returns the full photo→slot mapping.
//
// Rules, in order:
//   - assignments whose photo is gone, or whose slot fell out of range after
//     a capacity shrink, are freed
//   - surviving assignments are never touched
//   - unassigned photos claim the lowest free slot, in input order
//   - photos left over when every slot is taken stay unassigned until a
//     slot frees up on a later call
//
// Duplicate IDs in the input count as one photo. An empty input clears
// everything. Assign cannot fail; an unassignable photo is a normal outcome.
func (a *Assigner) Assign(photos []models.Photo, capacity int) map[string]int {
	incoming := make([]string, 0, len(photos))
	present := make(map[string]struct{}, len(photos))
	for _, p := range photos {
		if _, dup := present[p.ID]; dup {
			continue
		}
		present[p.ID] = struct{}{}
		incoming = append(incoming, p.ID)
	}

	for id, slot := range a.byPhoto {
		if _, ok := present[id]; ok && slot < capacity {
			continue
		}
		delete(a.byPhoto, id)
		delete(a.bySlot, slot)
	}

	for _, id := range incoming {
		if _, ok := a.byPhoto[id]; ok {
			continue
		}
		slot, ok := a.lowestFree(capacity)
		if !ok {
			continue
		}
		a.byPhoto[id] = slot
		a.bySlot[slot] = id
	}

	return a.Mapping()
}

// Mapping returns a copy of the current photo→slot assignments.
func (a *Assigner) Mapping() map[string]int {
	out := make(map[string]int, len(a.byPhoto))
	for id, slot := range a.byPhoto {
		out[id] = slot
	}
	return out
}

// SlotFor reports the slot assigned to a photo, if any.
func (a *Assigner) SlotFor(photoID string) (int, bool) {
	slot, ok := a.byPhoto[photoID]
	return slot, ok
}

// PhotoAt reports the photo occupying a slot, if any.
func (a *Assigner) PhotoAt(slot int) (string, bool) {
	id, ok := a.bySlot[slot]
	return id, ok
}

func (a *Assigner) lowestFree(capacity int) (int, bool) {
	for slot := 0; slot < capacity; slot++ {
		if _, taken := a.bySlot[slot]; !taken {
			return slot, true
		}
	}
	return 0, false
}
