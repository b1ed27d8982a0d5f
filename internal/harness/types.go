package harness

import "github.com/roach88/apiary/internal/pipeline"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if every assertion held (or the expected error occurred).
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Run is the analysis output. Nil when the scenario expected an error.
	Run *pipeline.Result `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
