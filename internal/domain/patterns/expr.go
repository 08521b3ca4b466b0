package patterns

import (
	"fmt"
	"strings"
)

// ExprKind enumerates the value expressions an action may carry.
type ExprKind int

const (
	// ExprLiteral writes Text as-is.
	ExprLiteral ExprKind = iota
	// ExprSelfAmount copies the current amount onto the target field ($SELF).
	ExprSelfAmount
	// ExprNegatedAmount writes the current amount with its sign flipped (-$CURRENT).
	ExprNegatedAmount
	// ExprCurrentValue keeps the target field's own value, optionally appending a comment ($CURRENT).
	ExprCurrentValue
)

const (
	tokenSelf           = "$SELF"
	tokenCurrent        = "$CURRENT"
	tokenNegatedCurrent = "-$CURRENT"
)

// Expr is a parsed action value.
type Expr struct {
	Kind ExprKind
	Text string
}

// Literal returns a literal expression.
func Literal(s string) Expr {
	return Expr{Kind: ExprLiteral, Text: s}
}

// ParseExpr parses a configured action value. Unknown $-tokens are rejected so a
// typo never turns into a literal value. A leading "$$" escapes a literal dollar.
func ParseExpr(raw string) (Expr, error) {
	v := strings.TrimSpace(raw)
	switch v {
	case tokenSelf:
		return Expr{Kind: ExprSelfAmount}, nil
	case tokenCurrent:
		return Expr{Kind: ExprCurrentValue}, nil
	case tokenNegatedCurrent:
		return Expr{Kind: ExprNegatedAmount}, nil
	}
	if strings.HasPrefix(v, "$$") {
		return Literal(v[1:]), nil
	}
	if strings.HasPrefix(v, "$") || strings.HasPrefix(v, "-$") {
		return Expr{}, fmt.Errorf("unknown value token %q", v)
	}
	return Literal(raw), nil
}

func (e Expr) String() string {
	switch e.Kind {
	case ExprSelfAmount:
		return tokenSelf
	case ExprNegatedAmount:
		return tokenNegatedCurrent
	case ExprCurrentValue:
		return tokenCurrent
	default:
		return e.Text
	}
}
