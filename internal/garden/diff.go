package garden

// Diff compares the previously observed snapshot against the current one and
// returns the change events, in category order then entry order within
// current. A nil previous snapshot means first observation: nothing to
// compare against, no events. Neither input is mutated.
func Diff(previous, current *Snapshot) []ChangeEvent {
	if previous == nil || current == nil {
		return nil
	}

	var events []ChangeEvent
	for ci := range current.Categories {
		cat := &current.Categories[ci]
		prevCat := previous.Category(cat.Name)
		if cat.Timed {
			events = append(events, diffTimed(cat, prevCat)...)
			continue
		}
		events = append(events, diffStock(cat, prevCat)...)
	}
	return events
}

// diffStock joins entries by exact name. Entries missing from previous are
// new arrivals; entries present with a different quantity changed.
func diffStock(cat, prevCat *Category) []ChangeEvent {
	var events []ChangeEvent
	for _, e := range cat.Entries {
		prev, ok := findByName(prevCat, e.Name)
		switch {
		case !ok:
			events = append(events, ChangeEvent{
				Kind:     EventAppeared,
				Category: cat.Name,
				Entry:    e,
			})
		case prev.Quantity != e.Quantity:
			events = append(events, ChangeEvent{
				Kind:             EventQuantityChanged,
				Category:         cat.Name,
				Entry:            e,
				PreviousQuantity: prev.Quantity,
				CurrentQuantity:  e.Quantity,
				Delta:            e.Quantity - prev.Quantity,
			})
		}
	}
	return events
}

// diffTimed joins entries by stable ID. Starts are reported in current
// order, then ends in previous order.
func diffTimed(cat, prevCat *Category) []ChangeEvent {
	var events []ChangeEvent
	for _, e := range cat.Entries {
		if !e.Active {
			continue
		}
		prev, ok := findByID(prevCat, e.ID)
		if !ok || !prev.Active {
			events = append(events, ChangeEvent{
				Kind:     EventActivityStarted,
				Category: cat.Name,
				Entry:    e,
			})
		}
	}
	if prevCat == nil {
		return events
	}
	for _, e := range prevCat.Entries {
		if !e.Active {
			continue
		}
		cur, ok := findByID(cat, e.ID)
		if !ok || !cur.Active {
			events = append(events, ChangeEvent{
				Kind:     EventActivityEnded,
				Category: cat.Name,
				Entry:    e,
			})
		}
	}
	return events
}

func findByName(cat *Category, name string) (Entry, bool) {
	if cat == nil {
		return Entry{}, false
	}
	for _, e := range cat.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

func findByID(cat *Category, id string) (Entry, bool) {
	if cat == nil || id == "" {
		return Entry{}, false
	}
	for _, e := range cat.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
