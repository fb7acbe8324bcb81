package event

// Option configures a registration.
type Option func(*registration)

// WithPriority sets the handler priority. Higher runs first; default 0.
func WithPriority(p int) Option {
	return func(r *registration) { r.priority = p }
}

// WithCondition adds preconditions. Duplicates are ignored.
func WithCondition(conds ...Condition) Option {
	return func(r *registration) {
		for _, c := range conds {
			if !r.has(c) {
				r.conds = append(r.conds, c)
			}
		}
	}
}

// SkipWhenModalOpen skips the handler while a modal is open.
func SkipWhenModalOpen() Option { return WithCondition(CondSkipWhenModalOpen) }

// OnlyInBulkMode runs the handler only in bulk selection mode.
func OnlyInBulkMode() Option { return WithCondition(CondOnlyInBulkMode) }

// OnlyWhenMarqueeActive runs the handler only during a marquee drag.
func OnlyWhenMarqueeActive() Option { return WithCondition(CondOnlyWhenMarqueeActive) }

// SkipWhenNodeSelectorActive skips the handler while the node selector is up.
func SkipWhenNodeSelectorActive() Option { return WithCondition(CondSkipWhenNodeSelectorActive) }

// WithTargetSelector restricts the handler to events whose region path
// contains selector. The Manager enforces it; handlers need not re-check.
func WithTargetSelector(selector string) Option {
	return func(r *registration) { r.selector = selector }
}
