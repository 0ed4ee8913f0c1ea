package calc

import "time"

// Defaults applied to zero-valued request fields and limits.
const (
	DefaultPrecision     = 10
	DefaultTimeout       = 5 * time.Second
	DefaultMaxComplexity = 100.0

	DefaultMaxLength = 1000
	DefaultMaxDepth  = 10
	DefaultMaxCalls  = 20
)

// Request describes one evaluation. It is a value type; Evaluate never
// mutates it.
type Request struct {
	Expression    string        `json:"expression"`
	Precision     *int          `json:"precision,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	MaxComplexity float64       `json:"max_complexity,omitempty"`
}

// NewRequest returns a request for expr with every default applied.
func NewRequest(expr string) Request {
	p := DefaultPrecision
	return Request{
		Expression:    expr,
		Precision:     &p,
		Timeout:       DefaultTimeout,
		MaxComplexity: DefaultMaxComplexity,
	}
}

// WithPrecision returns a copy of r with the given decimal precision.
func (r Request) WithPrecision(places int) Request {
	r.Precision = &places
	return r
}

// WithTimeout returns a copy of r with the given wall-clock budget.
func (r Request) WithTimeout(d time.Duration) Request {
	r.Timeout = d
	return r
}

// WithMaxComplexity returns a copy of r with the given complexity budget.
func (r Request) WithMaxComplexity(max float64) Request {
	r.MaxComplexity = max
	return r
}

// precision returns the effective precision. Negative values are clamped to 0.
func (r Request) precision() int {
	if r.Precision == nil {
		return DefaultPrecision
	}
	if *r.Precision < 0 {
		return 0
	}
	return *r.Precision
}

func (r Request) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r Request) maxComplexity() float64 {
	if r.MaxComplexity <= 0 {
		return DefaultMaxComplexity
	}
	return r.MaxComplexity
}

// Limits bounds the static shape of an expression.
type Limits struct {
	MaxLength int `yaml:"max_length" json:"max_length"`
	MaxDepth  int `yaml:"max_depth" json:"max_depth"`
	MaxCalls  int `yaml:"max_calls" json:"max_calls"`
}

// DefaultLimits returns the standard limits.
func DefaultLimits() Limits {
	return Limits{
		MaxLength: DefaultMaxLength,
		MaxDepth:  DefaultMaxDepth,
		MaxCalls:  DefaultMaxCalls,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxLength <= 0 {
		l.MaxLength = DefaultMaxLength
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxCalls <= 0 {
		l.MaxCalls = DefaultMaxCalls
	}
	return l
}
