package exec

import (
	"strings"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/plan"
	"github.com/zqlite/zqlite-go/sql"
)

// evalPredicate applies a bound WHERE clause to a row. AND binds tighter
// than OR, so the condition list is evaluated as OR-connected groups of
// AND-connected conditions.
func evalPredicate(pred plan.Predicate, row []core.Value, args []core.Value) (bool, error) {
	if pred.Empty() {
		return true, nil
	}

	groupResult := true
	for i, cond := range pred.Conditions {
		if groupResult {
			match, err := evalCondition(cond, row, args)
			if err != nil {
				return false, err
			}
			groupResult = match
		}
		if i < len(pred.Ops) && pred.Ops[i] == sql.LogicalOr {
			if groupResult {
				return true, nil
			}
			groupResult = true
		}
	}
	return groupResult, nil
}

func evalCondition(cond plan.Condition, row []core.Value, args []core.Value) (bool, error) {
	value := row[cond.Col]

	var result bool
	switch cond.Operator {
	case sql.IsNullOperator:
		result = value.Type() == core.TypeNull
	case sql.IsNotNullOperator:
		result = value.Type() != core.TypeNull
	case sql.LikeOperator:
		rhs := cond.Value.Resolve(args)
		text, err1 := value.Text()
		pattern, err2 := rhs.Text()
		result = err1 == nil && err2 == nil && likeMatch(pattern, text)
	case sql.InOperator:
		for _, operand := range cond.InValues {
			if sqlEquals(value, operand.Resolve(args)) {
				result = true
				break
			}
		}
	default:
		rhs := cond.Value.Resolve(args)
		// NULL compares as unknown
		if value.Type() == core.TypeNull || rhs.Type() == core.TypeNull {
			result = false
			if cond.Negated {
				return false, nil
			}
			return result, nil
		}
		cmp := value.Compare(rhs)
		switch cond.Operator {
		case sql.EqualsOperator:
			result = cmp == 0
		case sql.NotEqualsOperator:
			result = cmp != 0
		case sql.LessThanOperator:
			result = cmp < 0
		case sql.GreaterThanOperator:
			result = cmp > 0
		case sql.LessThanOrEqualOperator:
			result = cmp <= 0
		case sql.GreaterThanOrEqualOperator:
			result = cmp >= 0
		default:
			return false, core.Errorf(core.KindInternal, "unknown operator %d", cond.Operator)
		}
	}

	if cond.Negated {
		result = !result
	}
	return result, nil
}

// sqlEquals is SQL equality: NULL equals nothing, numerics compare
// across integer and real.
func sqlEquals(a, b core.Value) bool {
	if a.Type() == core.TypeNull || b.Type() == core.TypeNull {
		return false
	}
	return a.Compare(b) == 0
}

// likeMatch implements LIKE: % matches any run, _ matches one character,
// comparison is case-insensitive.
func likeMatch(pattern, s string) bool {
	return likeMatchFold(strings.ToLower(pattern), strings.ToLower(s))
}

func likeMatchFold(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '%':
			for len(pattern) > 0 && pattern[0] == '%' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatchFold(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		default:
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		}
	}
	return len(s) == 0
}
