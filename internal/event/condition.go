package event

import (
	"strings"

	"github.com/jxwalker/modshelf/internal/uistate"
)

// Condition is a precondition evaluated against shared UI state before a
// handler runs. The set is closed; every Condition maps to exactly one state
// key.
type Condition int

const (
	// CondSkipWhenModalOpen requires modalOpen to be false.
	CondSkipWhenModalOpen Condition = iota + 1
	// CondOnlyInBulkMode requires bulkMode to be true.
	CondOnlyInBulkMode
	// CondOnlyWhenMarqueeActive requires marqueeActive to be true.
	CondOnlyWhenMarqueeActive
	// CondSkipWhenNodeSelectorActive requires nodeSelectorActive to be false.
	CondSkipWhenNodeSelectorActive
)

type conditionSpec struct {
	name string
	key  string
	want bool
}

var conditions = map[Condition]conditionSpec{
	CondSkipWhenModalOpen:          {name: "skipWhenModalOpen", key: uistate.ModalOpen, want: false},
	CondOnlyInBulkMode:             {name: "onlyInBulkMode", key: uistate.BulkMode, want: true},
	CondOnlyWhenMarqueeActive:      {name: "onlyWhenMarqueeActive", key: uistate.MarqueeActive, want: true},
	CondSkipWhenNodeSelectorActive: {name: "skipWhenNodeSelectorActive", key: uistate.NodeSelectorActive, want: false},
}

// Conditions lists every recognised precondition.
func Conditions() []Condition {
	return []Condition{
		CondSkipWhenModalOpen,
		CondOnlyInBulkMode,
		CondOnlyWhenMarqueeActive,
		CondSkipWhenNodeSelectorActive,
	}
}

func (c Condition) String() string {
	if def, ok := conditions[c]; ok {
		return def.name
	}
	return "unknown"
}

// StateKey returns the shared state key that c reads.
func (c Condition) StateKey() string {
	return conditions[c].key
}

// Satisfied evaluates c against st. Unknown conditions never pass.
func (c Condition) Satisfied(st *uistate.Store) bool {
	def, ok := conditions[c]
	if !ok {
		return false
	}
	return st.Bool(def.key) == def.want
}

// ParseCondition resolves an option name such as "skipWhenModalOpen" or
// "onlyInBulkMode". The "skipWhen"/"only"/"onlyWhen" prefix is stripped and
// the remainder is matched against the state key case-insensitively, so
// "skipwhenmodalopen" resolves too.
func ParseCondition(name string) (Condition, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	var rest string
	var want bool
	switch {
	case strings.HasPrefix(lower, "skipwhen"):
		rest, want = lower[len("skipwhen"):], false
	case strings.HasPrefix(lower, "onlywhen"):
		rest, want = lower[len("onlywhen"):], true
	case strings.HasPrefix(lower, "onlyin"):
		rest, want = lower[len("onlyin"):], true
	case strings.HasPrefix(lower, "only"):
		rest, want = lower[len("only"):], true
	default:
		return 0, false
	}
	for _, c := range Conditions() {
		def := conditions[c]
		if def.want == want && strings.ToLower(def.key) == rest {
			return c, true
		}
	}
	return 0, false
}
