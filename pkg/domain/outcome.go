package domain

import "time"

// ExecutionOutcome is the terminal result of one OperationRequest
type ExecutionOutcome struct {
	// Index is the request's position in the batch it was submitted with
	Index   int              `json:"index"`
	Request OperationRequest `json:"request"`
	Success bool             `json:"success"`

	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	// ConsumedResource is the gas coin snapshot the last attempt was bound to
	ConsumedResource ResourceHandle `json:"consumed_resource"`
	Effects          *Effects       `json:"effects,omitempty"`
	Attempts         int            `json:"attempts"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Fail marks the outcome failed with err
func (o *ExecutionOutcome) Fail(err error) {
	o.Success = false
	o.Err = err
	o.Error = err.Error()
	o.ErrorKind = ErrorKind(err)
}

// Succeed marks the outcome successful with the given effects
func (o *ExecutionOutcome) Succeed(fx *Effects) {
	o.Success = true
	o.Effects = fx
	o.Err = nil
	o.Error = ""
	o.ErrorKind = ""
}

// Summary aggregates a list of outcomes. Deciding whether a batch as a
// whole succeeded is left to the caller.
type Summary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByError   map[string]int `json:"by_error,omitempty"`
	GasUsed   uint64         `json:"gas_used"`
}

// Summarize counts successes and failures
func Summarize(outcomes []ExecutionOutcome) Summary {
	s := Summary{Total: len(outcomes), ByError: make(map[string]int)}
	for _, o := range outcomes {
		if o.Effects != nil {
			s.GasUsed += o.Effects.GasUsed
		}
		if o.Success {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.ByError[o.ErrorKind]++
	}
	return s
}
