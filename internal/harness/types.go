package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq      int64    `json:"seq"`
	Op       string   `json:"op"`
	OpID     string   `json:"op_id,omitempty"` // empty when the engine assigned none
	ID       int64    `json:"id"`
	Rank     int64    `json:"rank,omitempty"`
	Outcome  string   `json:"outcome"`  // "ok" or an error code
	Position *int64   `json:"position"` // nil when outside the list
	List     []string `json:"list"`     // "id@position" after the step
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
