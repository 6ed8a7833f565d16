package ast

import "fmt"

// Kind tags a node. The set is closed: visitors switch over it and every
// kind is listed in kindNames.
type Kind uint8

// Statement kinds.
const (
	Root Kind = iota
	Select
	Insert
	Update
	Delete
	Create
	Drop
)

// Clause kinds.
const (
	SelectList Kind = iota + Drop + 1
	From
	Where
	GroupBy
	Having
	OrderBy
	Limit
	Offset
	Set
	Values
	Into
	With
	PartitionBy
)

// Expression and leaf kinds.
const (
	Column Kind = iota + PartitionBy + 1
	Value
	BindParameter
	Function
	Cast
	Parentheses
	Operator
	Case
	When
	Then
	Else
	Comma
	Comment
	Table
	Join
	On
	Type
	Target
	Outfile
	Union
	Minus
	Intersect
	Over
	Keyword

	kindCount
)

var kindNames = [...]string{
	Root:          "Root",
	Select:        "Select",
	Insert:        "Insert",
	Update:        "Update",
	Delete:        "Delete",
	Create:        "Create",
	Drop:          "Drop",
	SelectList:    "SelectList",
	From:          "From",
	Where:         "Where",
	GroupBy:       "GroupBy",
	Having:        "Having",
	OrderBy:       "OrderBy",
	Limit:         "Limit",
	Offset:        "Offset",
	Set:           "Set",
	Values:        "Values",
	Into:          "Into",
	With:          "With",
	PartitionBy:   "PartitionBy",
	Column:        "Column",
	Value:         "Value",
	BindParameter: "BindParameter",
	Function:      "Function",
	Cast:          "Cast",
	Parentheses:   "Parentheses",
	Operator:      "Operator",
	Case:          "Case",
	When:          "When",
	Then:          "Then",
	Else:          "Else",
	Comma:         "Comma",
	Comment:       "Comment",
	Table:         "Table",
	Join:          "Join",
	On:            "On",
	Type:          "Type",
	Target:        "Target",
	Outfile:       "Outfile",
	Union:         "Union",
	Minus:         "Minus",
	Intersect:     "Intersect",
	Over:          "Over",
	Keyword:       "Keyword",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsStatement reports whether k is one of the six statement kinds.
func (k Kind) IsStatement() bool {
	return k >= Select && k <= Drop
}

// IsClause reports whether k is a clause kind.
func (k Kind) IsClause() bool {
	return k >= SelectList && k <= PartitionBy
}

// IsExpression reports whether k is an expression kind.
func (k Kind) IsExpression() bool {
	switch k {
	case Column, Value, BindParameter, Function, Cast, Parentheses, Operator, Case:
		return true
	}
	return false
}

// IsSetOperator reports whether k marks a set operation between statements.
func (k Kind) IsSetOperator() bool {
	return k == Union || k == Minus || k == Intersect
}

// AliasCapable reports whether nodes of kind k may carry an alias.
func (k Kind) AliasCapable() bool {
	switch k {
	case Table, Column, Function, Cast, Parentheses, Case, Operator, Value, BindParameter:
		return true
	}
	return false
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Root; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}
