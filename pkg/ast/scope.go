package ast

import "fmt"

// Scope is the grammar context active when a node was created.
type Scope uint8

const (
	ScopeDefault Scope = iota
	ScopeSelect
	ScopeFrom
	ScopeWhere
	ScopeGroup
	ScopeHaving
	ScopeOrder
	ScopeInsert
	ScopeInto
	ScopeValues
	ScopeUpdate
	ScopeSet
	ScopeDelete
	ScopeCreate
	ScopeDrop
	ScopeLimit
	ScopeOffset
	ScopePartition
	ScopeOn
	ScopeWith

	scopeCount
)

var scopeNames = [...]string{
	ScopeDefault:   "DEFAULT",
	ScopeSelect:    "SELECT",
	ScopeFrom:      "FROM",
	ScopeWhere:     "WHERE",
	ScopeGroup:     "GROUP",
	ScopeHaving:    "HAVING",
	ScopeOrder:     "ORDER",
	ScopeInsert:    "INSERT",
	ScopeInto:      "INTO",
	ScopeValues:    "VALUES",
	ScopeUpdate:    "UPDATE",
	ScopeSet:       "SET",
	ScopeDelete:    "DELETE",
	ScopeCreate:    "CREATE",
	ScopeDrop:      "DROP",
	ScopeLimit:     "LIMIT",
	ScopeOffset:    "OFFSET",
	ScopePartition: "PARTITION",
	ScopeOn:        "ON",
	ScopeWith:      "WITH",
}

func (s Scope) String() string {
	if s < scopeCount {
		return scopeNames[s]
	}
	return fmt.Sprintf("Scope(%d)", s)
}

// MarshalText renders the scope by name.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
