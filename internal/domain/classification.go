package domain

import "fmt"

// Level is the ordered data-sensitivity classification of a table or column.
type Level string

const (
	LevelPublic       Level = "public"
	LevelInternal     Level = "internal"
	LevelConfidential Level = "confidential"
	LevelRestricted   Level = "restricted"
)

// levelOrder imposes the total order public < internal < confidential < restricted.
var levelOrder = map[Level]int{
	LevelPublic:       0,
	LevelInternal:     1,
	LevelConfidential: 2,
	LevelRestricted:   3,
}

// ParseLevel validates a classification level string.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := levelOrder[l]; !ok {
		return "", fmt.Errorf("unknown classification level: %q", s)
	}
	return l, nil
}

// Valid reports whether the level is a known classification.
func (l Level) Valid() bool {
	_, ok := levelOrder[l]
	return ok
}

// Order returns the position of the level in the total order. Unknown levels
// sort above restricted so a corrupted tag defaults toward more protection.
func (l Level) Order() int {
	if o, ok := levelOrder[l]; ok {
		return o
	}
	return levelOrder[LevelRestricted] + 1
}

// AtLeast reports whether l is at least as sensitive as other.
func (l Level) AtLeast(other Level) bool {
	return l.Order() >= other.Order()
}

// MaxLevel returns the more sensitive of a and b.
func MaxLevel(a, b Level) Level {
	if b.Order() > a.Order() {
		return b
	}
	return a
}

// RequiresApproval reports whether exports at this level need an approval
// workflow. Derived, never stored independently of the level.
func (l Level) RequiresApproval() bool {
	return l.AtLeast(LevelConfidential)
}

// WatermarkRequired reports whether exported content at this level must carry
// an attribution watermark. Same cut as RequiresApproval.
func (l Level) WatermarkRequired() bool {
	return l.AtLeast(LevelConfidential)
}
