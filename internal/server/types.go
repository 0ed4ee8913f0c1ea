package server

import (
	"errors"
	"time"

	"github.com/szaher/sharkcalc/internal/calc"
	"github.com/szaher/sharkcalc/internal/service"
)

// options shared by single and batch requests. Omitted fields take the
// service defaults.
type options struct {
	Precision     *int    `json:"precision,omitempty"`
	TimeoutMS     int64   `json:"timeout_ms,omitempty"`
	MaxComplexity float64 `json:"max_complexity,omitempty"`
}

func (o options) toCalc(expr string) calc.Request {
	req := calc.Request{Expression: expr}
	if o.Precision != nil {
		req = req.WithPrecision(*o.Precision)
	}
	if o.TimeoutMS > 0 {
		req = req.WithTimeout(time.Duration(o.TimeoutMS) * time.Millisecond)
	}
	if o.MaxComplexity > 0 {
		req = req.WithMaxComplexity(o.MaxComplexity)
	}
	return req
}

type calculateRequest struct {
	Expression string `json:"expression"`
	options
}

type batchRequest struct {
	Expressions []string `json:"expressions"`
	options
}

type resultBody struct {
	ID         string                `json:"id,omitempty"`
	Expression string                `json:"expression"`
	Normalized string                `json:"normalized"`
	Value      float64               `json:"value"`
	Precision  int                   `json:"precision"`
	Complexity calc.ComplexityReport `json:"complexity"`
	DurationMS float64               `json:"duration_ms"`
	Text       string                `json:"text"`
}

func newResultBody(id string, res calc.Result) resultBody {
	return resultBody{
		ID:         id,
		Expression: res.Expression,
		Normalized: res.Normalized,
		Value:      res.Value,
		Precision:  res.Precision,
		Complexity: res.Report,
		DurationMS: float64(res.Duration.Microseconds()) / 1000,
		Text:       service.Render(res.Expression, res.Value, nil),
	}
}

type errorBody struct {
	ID         string `json:"id,omitempty"`
	Expression string `json:"expression,omitempty"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Subject    string `json:"subject,omitempty"`
	Retryable  bool   `json:"retryable"`
	Text       string `json:"text"`
}

func newErrorBody(id string, err error) errorBody {
	body := errorBody{
		ID:      id,
		Error:   "internal_error",
		Message: err.Error(),
		Text:    service.Render("", 0, err),
	}
	var ce *calc.Error
	if errors.As(err, &ce) {
		body.Error = string(ce.Kind)
		body.Subject = ce.Subject
		body.Retryable = ce.Retryable()
	}
	return body
}
