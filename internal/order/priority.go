package order

// Priority tier thresholds over the estimated template value. An order at or
// above a threshold lands in the corresponding tier; requiresApproval then
// promotes the result one tier so humans have lead time before the window.
const (
	// ValueThresholdNormal is the floor of the normal tier; below it is low
	ValueThresholdNormal = 100.0
	// ValueThresholdHigh is the floor of the high tier
	ValueThresholdHigh = 1000.0
	// ValueThresholdUrgent is the floor of the urgent tier
	ValueThresholdUrgent = 10000.0
)

// EstimatedValue computes the estimated order value as the sum of
// quantity * unitPrice over the template items. Quantities and prices are
// guaranteed non-negative by the upstream validator.
func EstimatedValue(o *RecurringOrder) float64 {
	var total float64
	for _, item := range o.Template.Items {
		total += float64(item.Quantity) * item.UnitPrice
	}
	return total
}

// AssignPriority scores a recurring order into a priority tier. The function
// is pure and idempotent: the same order always yields the same priority
// unless its value-bearing fields change.
func AssignPriority(o *RecurringOrder) Priority {
	value := EstimatedValue(o)

	var tier Priority
	switch {
	case value >= ValueThresholdUrgent:
		tier = PriorityUrgent
	case value >= ValueThresholdHigh:
		tier = PriorityHigh
	case value >= ValueThresholdNormal:
		tier = PriorityNormal
	default:
		tier = PriorityLow
	}

	// Approval-gated orders surface one tier earlier.
	if o.RequiresApproval {
		tier = promote(tier)
	}
	return tier
}

func promote(p Priority) Priority {
	switch p {
	case PriorityLow:
		return PriorityNormal
	case PriorityNormal:
		return PriorityHigh
	default:
		return PriorityUrgent
	}
}
