package dice

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	tokenRegex = regexp.MustCompile(`(?i)(\d*d\d+|\d+|[+\-*/])`)
	diceRegex  = regexp.MustCompile(`(?i)^(\d*)d(\d+)$`)
	validOps   = map[string]bool{"+": true, "-": true, "*": true, "/": true}
)

var (
	ErrEmptyFormula = errors.New("empty formula")
	ErrDanglingOp   = errors.New("can't multiply or divide by nothing")
	ErrDivideByZero = errors.New("can't divide by zero")
)

// Intn returns a number in [0, n).
type Intn func(n int) int

type term struct {
	value  int
	desc   string
	op     string
	isDice bool
}

// Result is one evaluated formula.
type Result struct {
	Formula     string
	Calculation string
	Total       int
}

// Roll evaluates formula, e.g. "2d6+1d4*2-3". Multiplication and division
// bind to the term on their left before sums are taken.
func Roll(formula string, intn Intn) (*Result, error) {
	formula = strings.ReplaceAll(formula, " ", "")
	tokens := tokenRegex.FindAllString(formula, -1)
	if len(tokens) == 0 {
		return nil, ErrEmptyFormula
	}

	var terms []term
	currentOp := "+"
	for _, token := range tokens {
		if validOps[token] {
			currentOp = token
			continue
		}
		val, desc, err := evaluateToken(token, intn)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate `%s`: %w", token, err)
		}
		terms = append(terms, term{value: val, desc: desc, op: currentOp, isDice: strings.Contains(desc, "[")})
	}

	var merged []term
	for _, t := range terms {
		if t.op != "*" && t.op != "/" {
			merged = append(merged, t)
			continue
		}
		if len(merged) == 0 {
			return nil, ErrDanglingOp
		}
		prev := merged[len(merged)-1]
		merged = merged[:len(merged)-1]

		v := prev.value * t.value
		if t.op == "/" {
			if t.value == 0 {
				return nil, ErrDivideByZero
			}
			v = prev.value / t.value
		}
		merged = append(merged, term{
			value:  v,
			desc:   fmt.Sprintf("%s %s %s", prev.desc, t.op, t.desc),
			op:     prev.op,
			isDice: prev.isDice || t.isDice,
		})
	}

	total := 0
	var details []string
	for _, t := range merged {
		if len(details) > 0 {
			details = append(details, fmt.Sprintf(" %s ", t.op))
		}
		details = append(details, t.desc)

		switch t.op {
		case "+":
			total += t.value
		case "-":
			total -= t.value
		default:
			return nil, fmt.Errorf("unknown operator: %s", t.op)
		}
	}

	return &Result{Formula: formula, Calculation: strings.Join(details, ""), Total: total}, nil
}

func evaluateToken(token string, intn Intn) (int, string, error) {
	if matches := diceRegex.FindStringSubmatch(token); matches != nil {
		count := 1
		if matches[1] != "" {
			n, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, "", fmt.Errorf("invalid dice count")
			}
			count = n
		}

		sides, err := strconv.Atoi(matches[2])
		if err != nil || sides < 2 {
			return 0, "", fmt.Errorf("invalid dice sides")
		}
		if count > 100 || sides > 1000 {
			return 0, "", fmt.Errorf("too big. max 100 dice, 1000 sides")
		}

		var sum int
		rolls := make([]string, 0, count)
		for i := 0; i < count; i++ {
			r := intn(sides) + 1
			sum += r
			rolls = append(rolls, strconv.Itoa(r))
		}
		return sum, fmt.Sprintf("`%s` [%s]", token, strings.Join(rolls, ", ")), nil
	}

	num, err := strconv.Atoi(token)
	if err != nil {
		return 0, "", fmt.Errorf("not a number or dice")
	}
	return num, fmt.Sprintf("`%d`", num), nil
}

// Stats is the spread of a formula over repeated rolls.
type Stats struct {
	Samples  int
	Min, Max int
	Mean     float64
}

// Sample rolls formula n times.
func Sample(formula string, n int, intn Intn) (*Stats, error) {
	if n < 1 {
		n = 1
	}
	st := &Stats{Samples: n}
	sum := 0
	for i := 0; i < n; i++ {
		r, err := Roll(formula, intn)
		if err != nil {
			return nil, err
		}
		if i == 0 || r.Total < st.Min {
			st.Min = r.Total
		}
		if i == 0 || r.Total > st.Max {
			st.Max = r.Total
		}
		sum += r.Total
	}
	st.Mean = float64(sum) / float64(n)
	return st, nil
}
