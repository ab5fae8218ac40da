package expr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Error kinds reported by Parse. Match them with errors.Is.
var (
	ErrEmpty             = errors.New("Empty expression")
	ErrIncomplete        = errors.New("Incomplete expression")
	ErrInvalidTerm       = errors.New("Invalid term")
	ErrInvalidFraction   = errors.New("Invalid fraction")
	ErrFractionIntegers  = errors.New("Fractions must use integers")
	ErrDivisionByZero    = errors.New("Division by zero")
	ErrInvalidPercentage = errors.New("Invalid percentage")
	ErrInvalidPixel      = errors.New("Invalid pixel value")
)

// Error describes why an expression was rejected.
type Error struct {
	Kind   error
	Source string
	Term   string
}

func (e *Error) Error() string {
	if e.Term == "" {
		return fmt.Sprintf("%v in %q", e.Kind, e.Source)
	}
	return fmt.Sprintf("%v %q in %q", e.Kind, e.Term, e.Source)
}

func (e *Error) Unwrap() error { return e.Kind }

var numberPattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// Parse turns source into an expression tree. Operators fold left to right,
// so "a - b + c" becomes Add{Subtract{a, b}, c}.
func Parse(source string) (Node, error) {
	compact := stripSpace(source)
	if compact == "" {
		return nil, &Error{Kind: ErrEmpty, Source: source}
	}

	var (
		result Node
		op     byte
		start  int
	)
	for i := 0; i <= len(compact); i++ {
		if i < len(compact) && compact[i] != '+' && compact[i] != '-' {
			continue
		}
		raw := compact[start:i]
		if raw == "" {
			if i == len(compact) {
				return nil, &Error{Kind: ErrIncomplete, Source: source}
			}
			return nil, &Error{Kind: ErrInvalidTerm, Source: source, Term: string(compact[i])}
		}
		term, err := parseTerm(raw)
		if err != nil {
			return nil, &Error{Kind: err, Source: source, Term: raw}
		}
		switch op {
		case 0:
			result = term
		case '+':
			result = Add{Left: result, Right: term}
		case '-':
			result = Subtract{Left: result, Right: term}
		}
		if i < len(compact) {
			op = compact[i]
			start = i + 1
		}
	}
	return result, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(source string) Node {
	n, err := Parse(source)
	if err != nil {
		panic(err)
	}
	return n
}

func parseTerm(raw string) (Node, error) {
	switch {
	case raw == "0":
		return Zero{}, nil
	case strings.Contains(raw, "/"):
		return parseFraction(raw)
	case strings.HasSuffix(raw, "%"):
		v, ok := parseNumber(strings.TrimSuffix(raw, "%"))
		if !ok {
			return nil, ErrInvalidPercentage
		}
		return Percentage{Value: v / 100}, nil
	case strings.HasSuffix(raw, "px"):
		v, ok := parseNumber(strings.TrimSuffix(raw, "px"))
		if !ok {
			return nil, ErrInvalidPixel
		}
		return Pixel{Value: v}, nil
	default:
		return nil, ErrInvalidTerm
	}
}

func parseFraction(raw string) (Node, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		return nil, ErrInvalidFraction
	}
	if strings.Contains(parts[0], ".") || strings.Contains(parts[1], ".") {
		return nil, ErrFractionIntegers
	}
	num, ok := parseInt(parts[0])
	if !ok {
		return nil, ErrInvalidFraction
	}
	den, ok := parseInt(parts[1])
	if !ok {
		return nil, ErrInvalidFraction
	}
	if den == 0 {
		return nil, ErrDivisionByZero
	}
	return Fraction{Numerator: num, Denominator: den}, nil
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseNumber(s string) (float64, bool) {
	if !numberPattern.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
