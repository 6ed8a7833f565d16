package token

import (
	"sort"
	"strings"
)

// Rule is the rule set that drives token classification: which words are
// keywords, which keywords name functions or data types, which word
// sequences form compound keywords, and how comments and quotes look.
//
// A Rule is read-only once built; share one across goroutines freely.
type Rule struct {
	keywords  map[string]bool
	functions map[string]bool
	datatypes map[string]bool

	// compounds maps the first word of every compound keyword to its
	// candidate word sequences, longest first.
	compounds map[string][][]string

	LineComment  string // "--"
	BlockOpen    string // "/*"
	BlockClose   string // "*/"
	StringQuote  byte   // '\''
	IdentQuotes  string // characters that open a quoted identifier
	DateKeywords map[string]bool
}

// NewRule creates a rule from word lists. Words are case-insensitive.
// Compound keywords are given as space separated words ("LEFT OUTER JOIN").
func NewRule(keywords, functions, datatypes, compounds []string) *Rule {
	r := &Rule{
		keywords:     make(map[string]bool),
		functions:    make(map[string]bool),
		datatypes:    make(map[string]bool),
		compounds:    make(map[string][][]string),
		LineComment:  "--",
		BlockOpen:    "/*",
		BlockClose:   "*/",
		StringQuote:  '\'',
		IdentQuotes:  "\"`",
		DateKeywords: map[string]bool{"DATE": true, "TIME": true, "TIMESTAMP": true, "INTERVAL": true},
	}
	r.AddKeywords(keywords...)
	r.AddFunctions(functions...)
	r.AddDatatypes(datatypes...)
	r.AddCompounds(compounds...)
	return r
}

// Clone returns a deep copy that can be extended without affecting r.
func (r *Rule) Clone() *Rule {
	c := &Rule{
		keywords:     copySet(r.keywords),
		functions:    copySet(r.functions),
		datatypes:    copySet(r.datatypes),
		compounds:    make(map[string][][]string, len(r.compounds)),
		LineComment:  r.LineComment,
		BlockOpen:    r.BlockOpen,
		BlockClose:   r.BlockClose,
		StringQuote:  r.StringQuote,
		IdentQuotes:  r.IdentQuotes,
		DateKeywords: copySet(r.DateKeywords),
	}
	for k, v := range r.compounds {
		c.compounds[k] = append([][]string(nil), v...)
	}
	return c
}

// AddKeywords registers reserved words.
func (r *Rule) AddKeywords(words ...string) {
	for _, w := range words {
		r.keywords[strings.ToUpper(w)] = true
	}
}

// AddFunctions registers keywords that name functions.
func (r *Rule) AddFunctions(words ...string) {
	for _, w := range words {
		r.functions[strings.ToUpper(w)] = true
	}
}

// AddDatatypes registers keywords that name data types.
func (r *Rule) AddDatatypes(words ...string) {
	for _, w := range words {
		r.datatypes[strings.ToUpper(w)] = true
	}
}

// AddCompounds registers multi-word keywords. Every word of a compound is
// also registered as a keyword.
func (r *Rule) AddCompounds(phrases ...string) {
	for _, phrase := range phrases {
		words := strings.Fields(strings.ToUpper(phrase))
		if len(words) < 2 {
			continue
		}
		r.AddKeywords(words...)
		r.compounds[words[0]] = append(r.compounds[words[0]], words)
		sort.SliceStable(r.compounds[words[0]], func(i, j int) bool {
			return len(r.compounds[words[0]][i]) > len(r.compounds[words[0]][j])
		})
	}
}

// Classify returns the kind and subkind of an upper-cased bare word.
func (r *Rule) Classify(upper string) (Kind, Subkind) {
	switch {
	case r.functions[upper]:
		return Keyword, Function
	case r.datatypes[upper]:
		return Keyword, Datatype
	case r.keywords[upper]:
		return Keyword, None
	default:
		return Name, None
	}
}

// IsKeyword reports whether the upper-cased word is any kind of keyword.
func (r *Rule) IsKeyword(upper string) bool {
	return r.keywords[upper] || r.functions[upper] || r.datatypes[upper]
}

// IsFunction reports whether the upper-cased word names a function.
func (r *Rule) IsFunction(upper string) bool {
	return r.functions[upper]
}

// IsDatatype reports whether the upper-cased word names a data type.
func (r *Rule) IsDatatype(upper string) bool {
	return r.datatypes[upper]
}

// Compounds returns the compound keyword candidates starting with the
// upper-cased word, longest first.
func (r *Rule) Compounds(first string) [][]string {
	return r.compounds[first]
}

// Words returns the sorted words of one class: Function and Datatype
// select those subkinds, anything else selects the plain keywords.
// Compound keywords are returned space separated.
func (r *Rule) Words(sub Subkind) []string {
	var words []string
	switch sub {
	case Function:
		words = setKeys(r.functions)
	case Datatype:
		words = setKeys(r.datatypes)
	default:
		for w := range r.keywords {
			if !r.functions[w] && !r.datatypes[w] {
				words = append(words, w)
			}
		}
		for _, cs := range r.compounds {
			for _, c := range cs {
				words = append(words, strings.Join(c, " "))
			}
		}
	}
	sort.Strings(words)
	return words
}

func setKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func copySet(m map[string]bool) map[string]bool {
	c := make(map[string]bool, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// DefaultRule returns the built-in rule set covering the supported grammar.
func DefaultRule() *Rule {
	return NewRule(defaultKeywords, defaultFunctions, defaultDatatypes, defaultCompounds)
}

var defaultKeywords = []string{
	"ALL", "AND", "AS", "ASC", "BETWEEN", "BY", "CASCADE", "CASE", "CONSTRAINT",
	"CREATE", "CROSS", "DEFAULT", "DELETE", "DESC", "DISTINCT", "DROP", "ELSE",
	"END", "EXCEPT", "EXISTS", "FALSE", "FETCH", "FIRST", "FOR", "FOREIGN",
	"FROM", "FULL", "GROUP", "HAVING", "IF", "IN", "INNER", "INSERT",
	"INTERSECT", "INTO", "IS", "JOIN", "KEY", "LAST", "LEFT", "LIKE", "LIMIT",
	"MINUS", "NATURAL", "NOT", "NULL", "NULLS", "OFFSET", "ON", "ONLY", "OR",
	"ORDER", "OUTER", "OUTFILE", "OVER", "PARTITION", "PRIMARY", "PRIOR",
	"REFERENCES", "REPLACE", "RIGHT", "ROWS", "SELECT", "SEQUENCE", "SET",
	"TABLE", "THEN", "TRUE", "UNION", "UNIQUE", "UPDATE", "USING", "VALUES",
	"VIEW", "WHEN", "WHERE", "WITH", "INDEX",
}

var defaultFunctions = []string{
	"ABS", "AVG", "CAST", "CEIL", "COALESCE", "CONCAT", "COUNT",
	"CURRENT_DATE", "CURRENT_TIMESTAMP", "DECODE", "DENSE_RANK", "EXTRACT",
	"FLOOR", "GREATEST", "LAG", "LEAD", "LEAST", "LENGTH", "LOWER", "LTRIM",
	"MAX", "MIN", "MOD", "NULLIF", "NVL", "NVL2", "RANK", "ROUND",
	"ROW_NUMBER", "RTRIM", "SUBSTR", "SUBSTRING", "SUM", "SYSDATE", "TO_CHAR",
	"TO_DATE", "TO_NUMBER", "TRIM", "TRUNC", "UPPER",
}

var defaultDatatypes = []string{
	"BIGINT", "BLOB", "BOOLEAN", "CHAR", "CLOB", "DATE", "DECIMAL", "DOUBLE",
	"FLOAT", "INT", "INTEGER", "INTERVAL", "NCHAR", "NUMBER", "NUMERIC",
	"NVARCHAR", "NVARCHAR2", "REAL", "SMALLINT", "TEXT", "TIME", "TIMESTAMP",
	"VARCHAR", "VARCHAR2",
}

var defaultCompounds = []string{
	"ORDER BY", "GROUP BY", "PARTITION BY",
	"UNION ALL",
	"INNER JOIN", "CROSS JOIN", "NATURAL JOIN",
	"LEFT JOIN", "LEFT OUTER JOIN",
	"RIGHT JOIN", "RIGHT OUTER JOIN",
	"FULL JOIN", "FULL OUTER JOIN",
	"CREATE OR REPLACE",
	"IS NOT", "NOT IN", "NOT LIKE", "NOT BETWEEN", "NOT EXISTS",
	"NULLS FIRST", "NULLS LAST",
	"IF EXISTS", "IF NOT EXISTS",
	"PRIMARY KEY", "FOREIGN KEY",
}
