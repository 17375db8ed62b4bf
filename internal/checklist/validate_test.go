package checklist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanDocument(t *testing.T) {
	doc := NewDocument()
	doc.Columns = []Column{{Key: "A"}, {Key: "B"}}
	doc.Nodes = []Node{node(1, TypeLevel, 0, 10), node(2, TypeItem, 1, 10)}
	assert.NoError(t, doc.Validate())
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	a := node(1, TypeLevel, 0, 10)
	a.Code = "1"
	b := node(2, TypeGroup, 1, 10)
	b.Code = "1"
	b.Title = "Dup"
	item := node(3, TypeItem, 2, 10)
	item.Code = "1.1"
	nested := node(4, TypeItem, 3, 10)
	nested.Code = "1.1.1"
	nested.Title = "Nested"
	loopA := node(5, TypeGroup, 6, 10)
	loopB := node(6, TypeGroup, 5, 10)

	violations := Validate(
		[]Column{{Key: "X"}, {Key: "X"}},
		[]Node{a, b, item, nested, loopA, loopB},
	)
	kinds := make([]ViolationKind, 0, len(violations))
	for _, v := range violations {
		kinds = append(kinds, v.Kind)
	}
	assert.Equal(t, []ViolationKind{
		ViolationDuplicateColumn,
		ViolationDuplicateCode,
		ViolationCycle,
		ViolationItemUnderItem,
	}, kinds)

	assert.Equal(t, "duplicate column key: X", violations[0].Message)
	assert.Equal(t, `duplicate code: "1" (Dup)`, violations[1].Message)
	assert.Equal(t, "invalid hierarchy: cycle detected at 5", violations[2].Message)
	assert.Equal(t, "invalid hierarchy: an ITEM cannot have an ITEM parent: 1.1.1 Nested", violations[3].Message)
}

func TestValidateSelfParentIsCycle(t *testing.T) {
	self := node(7, TypeGroup, 7, 10)
	violations := Validate(nil, []Node{self})
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationCycle, violations[0].Kind)
}

func TestValidateOrphansAreNotViolations(t *testing.T) {
	orphan := node(2, TypeItem, 99, 10)
	assert.Empty(t, Validate(nil, []Node{orphan}))
}

func TestValidationErrorSummary(t *testing.T) {
	doc := NewDocument()
	doc.Columns = []Column{{Key: "X"}, {Key: "X"}, {Key: "Y"}, {Key: "Y"}}

	err := doc.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "duplicate column key: X (+1 more)", verr.Summary())
	assert.Equal(t, verr.Summary(), err.Error())
	assert.Equal(t, []string{"duplicate column key: X", "duplicate column key: Y"}, verr.Messages())

	single := &ValidationError{Violations: verr.Violations[:1]}
	assert.Equal(t, "duplicate column key: X", single.Summary())
}

func TestClassifyBands(t *testing.T) {
	levels := DefaultPriorityLevels()
	assert.Equal(t, "Baja", Classify(levels, 0, false))
	assert.Equal(t, "Baja", Classify(levels, 32, false))
	assert.Equal(t, "Media", Classify(levels, 33, false))
	assert.Equal(t, "Media", Classify(levels, 65.9, false))
	assert.Equal(t, "Alta", Classify(levels, 66, false))
	assert.Equal(t, "Alta", Classify(levels, 99, false))
	assert.Equal(t, "", Classify(levels, 100, false))
	assert.Equal(t, "Alta", Classify(levels, 100, true))
	assert.Equal(t, "", Classify(levels, -1, true))
	assert.Equal(t, "", Classify(nil, 50, true))
}

func TestValidateComparesNormalizedCodes(t *testing.T) {
	a := node(1, TypeItem, 0, 10)
	a.Code = "1.1"
	b := node(2, TypeItem, 0, 20)
	b.Code = " 1.1. "
	b.Title = "Trailing"
	violations := Validate(nil, []Node{a, b})
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationDuplicateCode, violations[0].Kind)
	assert.Equal(t, `duplicate code: "1.1" (Trailing)`, violations[0].Message)

	c := node(3, TypeItem, 0, 30)
	c.Code = "1.1.1"
	assert.Empty(t, Validate(nil, []Node{a, c}))
}
