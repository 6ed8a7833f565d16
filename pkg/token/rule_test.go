package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRule_Classify(t *testing.T) {
	r := DefaultRule()

	tests := []struct {
		word    string
		kind    Kind
		subkind Subkind
	}{
		{"SELECT", Keyword, None},
		{"COUNT", Keyword, Function},
		{"CAST", Keyword, Function},
		{"VARCHAR2", Keyword, Datatype},
		{"DATE", Keyword, Datatype},
		{"OUTER", Keyword, None},
		{"CUSTOMERS", Name, None},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			kind, sub := r.Classify(tt.word)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.subkind, sub)
		})
	}
}

func TestRule_CompoundsLongestFirst(t *testing.T) {
	r := DefaultRule()

	cands := r.Compounds("LEFT")
	require.Len(t, cands, 2)
	assert.Equal(t, []string{"LEFT", "OUTER", "JOIN"}, cands[0])
	assert.Equal(t, []string{"LEFT", "JOIN"}, cands[1])

	assert.Empty(t, r.Compounds("SELECT"))
}

func TestRule_CloneIsIndependent(t *testing.T) {
	base := DefaultRule()
	ext := base.Clone()

	ext.AddFunctions("my_func")
	ext.AddCompounds("qualify by")

	assert.True(t, ext.IsFunction("MY_FUNC"))
	assert.False(t, base.IsFunction("MY_FUNC"))
	assert.NotEmpty(t, ext.Compounds("QUALIFY"))
	assert.Empty(t, base.Compounds("QUALIFY"))
	assert.True(t, ext.IsKeyword("QUALIFY"), "compound words become keywords")
}

func TestRule_AddCompoundsIgnoresSingleWords(t *testing.T) {
	r := NewRule(nil, nil, nil, []string{"solo", "  "})
	assert.Empty(t, r.Compounds("SOLO"))
	assert.False(t, r.IsKeyword("SOLO"))
}

func TestToken_Helpers(t *testing.T) {
	kw := Token{Raw: "select", Norm: "SELECT", Kind: Keyword, Pos: Position{Line: 1, Column: 5, Offset: 4}, Length: 6}
	assert.True(t, kw.Is("SELECT"))
	assert.False(t, kw.Is("FROM"))
	assert.True(t, kw.IsWord())
	assert.Equal(t, 10, kw.End())

	bind := Token{Raw: ":id", Norm: "id", Kind: Value, Subkind: NamedBind}
	assert.True(t, bind.IsBind())

	comma := Token{Raw: ",", Kind: Symbol, Subkind: Comma}
	assert.True(t, comma.IsSymbol(Comma))
	assert.False(t, comma.IsWord())

	assert.Equal(t, "EOF", Token{}.String())
	assert.Equal(t, "KEYWORD", Keyword.String())
	assert.Equal(t, "named-bind", NamedBind.String())
	assert.Equal(t, "1:5", kw.Pos.String())
}

func TestRule_Words(t *testing.T) {
	r := NewRule([]string{"select", "from"}, []string{"count"}, []string{"int"}, []string{"group by"})

	assert.Equal(t, []string{"BY", "FROM", "GROUP", "GROUP BY", "SELECT"}, r.Words(None))
	assert.Equal(t, []string{"COUNT"}, r.Words(Function))
	assert.Equal(t, []string{"INT"}, r.Words(Datatype))
}
