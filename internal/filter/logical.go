package filter

import (
	"fmt"
	"strings"
)

// LogicalFilter implements logical operations (AND, OR, NOT) on other filters
type LogicalFilter struct {
	Operator LogicalOperator
	Filters  []Filter
}

// NewAndFilter creates a filter that requires all child filters to match
func NewAndFilter(filters ...Filter) *LogicalFilter {
	return &LogicalFilter{
		Operator: AndOperator,
		Filters:  filters,
	}
}

// NewOrFilter creates a filter that requires any child filter to match
func NewOrFilter(filters ...Filter) *LogicalFilter {
	return &LogicalFilter{
		Operator: OrOperator,
		Filters:  filters,
	}
}

// NewNotFilter creates a filter that negates the result of the child filter
func NewNotFilter(filter Filter) *LogicalFilter {
	return &LogicalFilter{
		Operator: NotOperator,
		Filters:  []Filter{filter},
	}
}

// Evaluate applies the logical operator to the child filters' own
// Evaluate results. AND over an empty filter list is true for every
// payload; OR over an empty list is false for every payload.
func (f *LogicalFilter) Evaluate(payload map[string]any) bool {
	switch f.Operator {
	case AndOperator:
		for _, child := range f.Filters {
			if !child.Evaluate(payload) {
				return false
			}
		}
		return true
	case OrOperator:
		for _, child := range f.Filters {
			if child.Evaluate(payload) {
				return true
			}
		}
		return false
	case NotOperator:
		if len(f.Filters) != 1 {
			return false
		}
		return !f.Filters[0].Evaluate(payload)
	default:
		return false
	}
}

// Validate checks if the filter configuration is valid
func (f *LogicalFilter) Validate() error {
	if len(f.Filters) == 0 {
		return NewFilterError("logical", "", "logical filter must have at least one child filter")
	}

	if f.Operator == NotOperator && len(f.Filters) != 1 {
		return NewFilterError("logical", "", "NOT filter must have exactly one child filter")
	}

	// Validate all child filters
	for i, childFilter := range f.Filters {
		if err := childFilter.Validate(); err != nil {
			return NewFilterError("logical", "", fmt.Sprintf("child filter %d validation failed: %v", i, err))
		}
	}

	return nil
}

// EstimateSelectivity estimates selectivity based on child filter selectivities
func (f *LogicalFilter) EstimateSelectivity() float64 {
	if len(f.Filters) == 0 {
		return 1.0
	}

	switch f.Operator {
	case AndOperator:
		// AND: multiply selectivities (more restrictive)
		selectivity := 1.0
		for _, filter := range f.Filters {
			selectivity *= filter.EstimateSelectivity()
		}
		return selectivity
	case OrOperator:
		// OR: use complement multiplication (less restrictive)
		complement := 1.0
		for _, filter := range f.Filters {
			complement *= (1.0 - filter.EstimateSelectivity())
		}
		return 1.0 - complement
	case NotOperator:
		// NOT: complement of child selectivity
		return 1.0 - f.Filters[0].EstimateSelectivity()
	default:
		return 0.5
	}
}

// String returns a string representation of the filter
func (f *LogicalFilter) String() string {
	if len(f.Filters) == 0 {
		return "EMPTY"
	}

	switch f.Operator {
	case AndOperator:
		var parts []string
		for _, filter := range f.Filters {
			parts = append(parts, fmt.Sprintf("(%s)", filter.String()))
		}
		return strings.Join(parts, " AND ")
	case OrOperator:
		var parts []string
		for _, filter := range f.Filters {
			parts = append(parts, fmt.Sprintf("(%s)", filter.String()))
		}
		return strings.Join(parts, " OR ")
	case NotOperator:
		return fmt.Sprintf("NOT (%s)", f.Filters[0].String())
	default:
		return "UNKNOWN"
	}
}
