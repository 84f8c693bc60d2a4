package schema

import "github.com/earthframe/earthframe/pkg/api/store"

// Status is a simulation status code and its display label.
type Status struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// NewStatuses builds the response for the status lookup table.
func NewStatuses(statuses []store.Status) []Status {
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{Code: s.Code, Label: s.Label})
	}

	return out
}

// Variable is a model output variable.
type Variable struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// NewVariables builds the response for the variable catalogue.
func NewVariables(variables []store.Variable) []Variable {
	out := make([]Variable, 0, len(variables))
	for _, v := range variables {
		out = append(out, Variable{Name: v.Name, Description: v.Description})
	}

	return out
}
