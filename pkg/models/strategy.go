package models

import "fmt"

// TargetMethod is the closed tag of a TargetStrategy (§3, §9 "Tagged variants").
type TargetMethod string

const (
	MethodCSS         TargetMethod = "css"
	MethodARIA        TargetMethod = "aria"
	MethodText        TargetMethod = "text"
	MethodCoordinates TargetMethod = "coordinates"
)

// TargetStrategy is an immutable, validated tagged variant describing one way
// to locate a page element. Construct only via NewTargetStrategy* so the
// payload/method invariant is enforced at construction time, never as an
// open dictionary.
type TargetStrategy struct {
	method TargetMethod

	selector string // css
	role     string // aria (required)
	name     string // aria (optional) or describes text target
	text     string // text
	exact    bool   // text
	x, y     int    // coordinates
}

// NewCSSStrategy builds a css-method strategy. selector must be non-empty.
func NewCSSStrategy(selector string) (TargetStrategy, error) {
	if selector == "" {
		return TargetStrategy{}, fmt.Errorf("css strategy requires a non-empty selector")
	}
	return TargetStrategy{method: MethodCSS, selector: selector}, nil
}

// NewARIAStrategy builds an aria-method strategy. role is required; name is
// optional.
func NewARIAStrategy(role, name string) (TargetStrategy, error) {
	if role == "" {
		return TargetStrategy{}, fmt.Errorf("aria strategy requires a non-empty role")
	}
	return TargetStrategy{method: MethodARIA, role: role, name: name}, nil
}

// NewTextStrategy builds a text-method strategy. text is required.
func NewTextStrategy(text string, exact bool) (TargetStrategy, error) {
	if text == "" {
		return TargetStrategy{}, fmt.Errorf("text strategy requires a non-empty text")
	}
	return TargetStrategy{method: MethodText, text: text, exact: exact}, nil
}

// NewCoordinatesStrategy builds a coordinates-method strategy. x and y must
// be non-negative.
func NewCoordinatesStrategy(x, y int) (TargetStrategy, error) {
	if x < 0 || y < 0 {
		return TargetStrategy{}, fmt.Errorf("coordinates strategy requires non-negative (x,y), got (%d,%d)", x, y)
	}
	return TargetStrategy{method: MethodCoordinates, x: x, y: y}, nil
}

// Method returns the strategy's tag.
func (t TargetStrategy) Method() TargetMethod { return t.method }

// CSS returns the css selector (valid only when Method() == MethodCSS).
func (t TargetStrategy) CSS() string { return t.selector }

// ARIA returns the (role, name) pair (valid only when Method() == MethodARIA).
func (t TargetStrategy) ARIA() (role, name string) { return t.role, t.name }

// Text returns the (text, exact) pair (valid only when Method() == MethodText).
func (t TargetStrategy) Text() (text string, exact bool) { return t.text, t.exact }

// Coordinates returns the (x,y) pair (valid only when Method() == MethodCoordinates).
func (t TargetStrategy) Coordinates() (x, y int) { return t.x, t.y }

// Describe returns a deterministic human-readable description of the
// strategy, used in ActionRecord/ErrorRecord "target description" fields.
// Deterministic for equal inputs (§8 round-trip property).
func (t TargetStrategy) Describe() string {
	switch t.method {
	case MethodCSS:
		return fmt.Sprintf("css:%s", t.selector)
	case MethodARIA:
		if t.name != "" {
			return fmt.Sprintf("aria:%s[name=%q]", t.role, t.name)
		}
		return fmt.Sprintf("aria:%s", t.role)
	case MethodText:
		if t.exact {
			return fmt.Sprintf("text:%q(exact)", t.text)
		}
		return fmt.Sprintf("text:%q", t.text)
	case MethodCoordinates:
		return fmt.Sprintf("coordinates:(%d,%d)", t.x, t.y)
	default:
		return "unknown-strategy"
	}
}
