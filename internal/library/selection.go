package library

import "sort"

// Toggle flips the bulk selection of path and reports the new state.
func (l *Library) Toggle(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byPath[path]; !ok {
		return false
	}
	if l.selected[path] {
		delete(l.selected, path)
		return false
	}
	l.selected[path] = true
	return true
}

func (l *Library) IsSelected(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected[path]
}

// SelectRange selects the visible rows between from and to inclusive, in
// either direction. With additive false the previous selection is replaced.
func (l *Library) SelectRange(from, to int, additive bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from > to {
		from, to = to, from
	}
	if from < 0 {
		from = 0
	}
	if to >= len(l.view) {
		to = len(l.view) - 1
	}
	if !additive {
		l.selected = map[string]bool{}
	}
	n := 0
	for i := from; i <= to; i++ {
		l.selected[l.view[i].Model.Path] = true
		n++
	}
	return n
}

// SelectAll selects every visible card.
func (l *Library) SelectAll() int {
	return l.SelectRange(0, l.Len()-1, true)
}

func (l *Library) ClearSelection() {
	l.mu.Lock()
	l.selected = map[string]bool{}
	l.mu.Unlock()
}

// Selected returns the selected cards ordered by path.
func (l *Library) Selected() []*Card {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Card, 0, len(l.selected))
	for p := range l.selected {
		if c := l.byPath[p]; c != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model.Path < out[j].Model.Path })
	return out
}

func (l *Library) SelectedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.selected)
}
