package service

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/szaher/sharkcalc/internal/calc"
)

// Render formats an evaluation for people: "✅ <expr> = <value>" on success,
// "❌ Error: <reason>" on failure.
func Render(expression string, value float64, err error) string {
	if err != nil {
		return "❌ Error: " + ErrorText(err)
	}
	return "✅ " + expression + " = " + FormatValue(value)
}

// ErrorText is the user-facing reason for a failed evaluation.
func ErrorText(err error) string {
	switch calc.KindOf(err) {
	case calc.KindDivisionByZero:
		return "Division by zero in expression!"
	case calc.KindSyntaxError:
		return "Invalid mathematical expression!"
	}
	var ce *calc.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

// FormatValue prints v in its shortest round-tripping form: fixed
// notation with a trailing ".0" for integral values, exponent notation
// outside [1e-4, 1e16).
func FormatValue(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
