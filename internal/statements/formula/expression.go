// Package formula evaluates the small arithmetic expressions that statement
// items carry in their values configuration.
package formula

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Operator identifies the top-level operation of an expression.
type Operator string

const (
	// OpPercent yields (arg1/arg2)*100.
	OpPercent Operator = "%"
	// OpDivide yields arg1/arg2.
	OpDivide Operator = "/"
	// OpSum yields the signed sum of sub items.
	OpSum Operator = "sum"
)

// CrossReportSeparator splits "template/identifier" references.
const CrossReportSeparator = "/"

// ErrInvalidExpression reports a malformed expression.
var ErrInvalidExpression = errors.New("formula: invalid expression")

// ItemRef points at another item by identifier.
type ItemRef struct {
	ItemID string `json:"item_id"`
}

// SubItem is one signed term of a sum.
type SubItem struct {
	ID       string `json:"id"`
	Negative bool   `json:"negative,omitempty"`
}

// SumArg holds the terms of a sum expression.
type SumArg struct {
	SubItems []SubItem `json:"sub_items"`
}

// Expression is either a binary ratio over two item references or a sum over
// sub items.
type Expression struct {
	Operator Operator `json:"operator,omitempty"`
	Arg1     *ItemRef `json:"arg1,omitempty"`
	Arg2     *ItemRef `json:"arg2,omitempty"`
	Arg      *SumArg  `json:"arg,omitempty"`
}

// Lookup resolves the value of an item identifier. The boolean is false when
// the identifier cannot be resolved.
type Lookup func(identifier string) (float64, bool)

// Validate checks that the expression carries the arguments its operator needs.
func (e Expression) Validate() error {
	switch e.op() {
	case OpPercent, OpDivide:
		if e.Arg1 == nil || e.Arg2 == nil {
			return fmt.Errorf("%w: operator %q requires arg1 and arg2", ErrInvalidExpression, e.Operator)
		}
		if strings.TrimSpace(e.Arg1.ItemID) == "" || strings.TrimSpace(e.Arg2.ItemID) == "" {
			return fmt.Errorf("%w: empty item reference", ErrInvalidExpression)
		}
	case OpSum:
		if e.Arg == nil {
			return fmt.Errorf("%w: sum requires arg", ErrInvalidExpression)
		}
		for _, sub := range e.Arg.SubItems {
			if strings.TrimSpace(sub.ID) == "" {
				return fmt.Errorf("%w: empty sub item id", ErrInvalidExpression)
			}
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, e.Operator)
	}
	return nil
}

// IsPercent reports whether the expression yields a percentage.
func (e Expression) IsPercent() bool {
	return e.op() == OpPercent
}

// References lists every identifier the expression reads, in argument order.
func (e Expression) References() []string {
	switch e.op() {
	case OpPercent, OpDivide:
		var refs []string
		if e.Arg1 != nil {
			refs = append(refs, e.Arg1.ItemID)
		}
		if e.Arg2 != nil {
			refs = append(refs, e.Arg2.ItemID)
		}
		return refs
	case OpSum:
		if e.Arg == nil {
			return nil
		}
		refs := make([]string, 0, len(e.Arg.SubItems))
		for _, sub := range e.Arg.SubItems {
			refs = append(refs, sub.ID)
		}
		return refs
	}
	return nil
}

// CrossReport reports whether any reference points into another report.
func (e Expression) CrossReport() bool {
	for _, ref := range e.References() {
		if IsCrossReport(ref) {
			return true
		}
	}
	return false
}

// op treats an operator-less expression with sub items as a sum.
func (e Expression) op() Operator {
	if e.Operator == "" && e.Arg != nil {
		return OpSum
	}
	return e.Operator
}

// Evaluate computes the expression. Unresolved references count as zero and a
// zero denominator yields zero.
func Evaluate(e Expression, lookup Lookup) (float64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if lookup == nil {
		lookup = func(string) (float64, bool) { return 0, false }
	}
	switch e.op() {
	case OpPercent:
		return Percent(resolve(lookup, e.Arg1.ItemID), resolve(lookup, e.Arg2.ItemID)), nil
	case OpDivide:
		return Ratio(resolve(lookup, e.Arg1.ItemID), resolve(lookup, e.Arg2.ItemID)), nil
	default:
		total := 0.0
		for _, sub := range e.Arg.SubItems {
			v := resolve(lookup, sub.ID)
			if sub.Negative {
				v = -v
			}
			total += v
		}
		return total, nil
	}
}

// Ratio divides num by den, returning zero for a zero denominator.
func Ratio(num, den float64) float64 {
	if math.Abs(den) > 0 {
		return num / den
	}
	return 0
}

// Percent returns num/den*100, or zero for a zero denominator.
func Percent(num, den float64) float64 {
	if math.Abs(den) > 0 {
		return num / den * 100
	}
	return 0
}

// IsCrossReport reports whether the identifier addresses another report.
func IsCrossReport(identifier string) bool {
	return strings.Contains(identifier, CrossReportSeparator)
}

// SplitCrossReport splits "template/identifier" into its parts.
func SplitCrossReport(identifier string) (template, item string, ok bool) {
	idx := strings.Index(identifier, CrossReportSeparator)
	if idx <= 0 || idx == len(identifier)-1 {
		return "", "", false
	}
	return identifier[:idx], identifier[idx+1:], true
}

func resolve(lookup Lookup, identifier string) float64 {
	v, ok := lookup(identifier)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
