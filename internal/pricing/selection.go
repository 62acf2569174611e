package pricing

import (
	"sort"

	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/google/uuid"
)

// IngredientStatus is the per-ingredient customization state. A tagged
// variant instead of two independent booleans, so an ingredient can
// never be extra and removed at the same time.
type IngredientStatus int

const (
	StatusNormal IngredientStatus = iota
	StatusExtra
	StatusRemoved
)

// Selection is the customization a customer applied to one menu item:
// ingredient statuses plus at most one chosen replacement option per
// group. The zero map values mean "no customization".
type Selection struct {
	statuses     map[uuid.UUID]IngredientStatus
	replacements map[uuid.UUID]uuid.UUID // group id -> option id
}

// NewSelection creates an empty selection.
func NewSelection() *Selection {
	return &Selection{
		statuses:     make(map[uuid.UUID]IngredientStatus),
		replacements: make(map[uuid.UUID]uuid.UUID),
	}
}

// Status returns the current state of an ingredient.
func (s *Selection) Status(ingredientID uuid.UUID) IngredientStatus {
	return s.statuses[ingredientID]
}

// ToggleExtra flips an ingredient between NORMAL and EXTRA. Toggling
// extra on a REMOVED ingredient clears the removal and moves it
// straight to EXTRA.
func (s *Selection) ToggleExtra(ingredientID uuid.UUID) {
	switch s.statuses[ingredientID] {
	case StatusExtra:
		delete(s.statuses, ingredientID)
	default:
		s.statuses[ingredientID] = StatusExtra
	}
}

// ToggleRemoved flips an ingredient between NORMAL and REMOVED. An
// EXTRA ingredient loses its extra flag and becomes REMOVED.
func (s *Selection) ToggleRemoved(ing menu.Ingredient) {
	if !ing.IsRemovable {
		return
	}
	switch s.statuses[ing.ID] {
	case StatusRemoved:
		delete(s.statuses, ing.ID)
	default:
		s.statuses[ing.ID] = StatusRemoved
	}
}

// SelectReplacement applies the replacement protocol for one group:
// choosing the default option (or re-choosing the current option)
// collapses the group back to "no selection"; choosing a different
// non-default option replaces the prior one.
func (s *Selection) SelectReplacement(group menu.ReplacementGroup, optionID uuid.UUID) {
	opt, ok := group.Option(optionID)
	if !ok {
		return
	}
	if opt.IsDefault || s.replacements[group.ID] == optionID {
		delete(s.replacements, group.ID)
		return
	}
	s.replacements[group.ID] = optionID
}

// Replacement returns the explicitly selected option for a group, if any.
func (s *Selection) Replacement(groupID uuid.UUID) (uuid.UUID, bool) {
	id, ok := s.replacements[groupID]
	return id, ok
}

// Extras returns the extra ingredient ids, sorted for canonical order.
func (s *Selection) Extras() []uuid.UUID {
	return s.idsWithStatus(StatusExtra)
}

// Removals returns the removed ingredient ids, sorted for canonical order.
func (s *Selection) Removals() []uuid.UUID {
	return s.idsWithStatus(StatusRemoved)
}

func (s *Selection) idsWithStatus(want IngredientStatus) []uuid.UUID {
	var ids []uuid.UUID
	for id, st := range s.statuses {
		if st == want {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Clone returns an independent copy of the selection.
func (s *Selection) Clone() *Selection {
	c := NewSelection()
	for id, st := range s.statuses {
		c.statuses[id] = st
	}
	for g, o := range s.replacements {
		c.replacements[g] = o
	}
	return c
}
