package format_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lfRule() format.Rule {
	r := format.DefaultRule()
	r.OutNewLineCode = format.NewLineLF
	return r
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		rule func(*format.Rule)
		want string
	}{
		{
			name: "select with grouped condition",
			sql:  "select a, b from t where a = 1 and (b = 2 or b = 3) order by a",
			want: "SELECT\n    a,\n    b\nFROM\n    t\nWHERE\n    a = 1\n    AND (b = 2 OR b = 3)\nORDER BY\n    a\n",
		},
		{
			name: "and/or after condition",
			sql:  "select a from t where a = 1 and b = 2",
			rule: func(r *format.Rule) { r.NewLineBeforeAndOr = false },
			want: "SELECT\n    a\nFROM\n    t\nWHERE\n    a = 1 AND\n    b = 2\n",
		},
		{
			name: "comma first",
			sql:  "select a, b from t",
			rule: func(r *format.Rule) { r.NewLineBeforeComma = true },
			want: "SELECT\n    a\n    , b\nFROM\n    t\n",
		},
		{
			name: "joins indent once",
			sql:  "select * from a x left join b y on x.id = y.id and x.k = y.k where x.v > 0",
			want: "SELECT\n    *\nFROM\n    a x\n    LEFT JOIN b y\n        ON x.id = y.id\n        AND x.k = y.k\nWHERE\n    x.v > 0\n",
		},
		{
			name: "subquery",
			sql:  "select a from t where x in (select y from u)",
			want: "SELECT\n    a\nFROM\n    t\nWHERE\n    x IN (\n        SELECT\n            y\n        FROM\n            u\n    )\n",
		},
		{
			name: "case",
			sql:  "select case when a = 1 then 'x' else 'y' end as label, b from t",
			want: "SELECT\n    CASE\n        WHEN a = 1 THEN 'x'\n        ELSE 'y'\n    END AS label,\n    b\nFROM\n    t\n",
		},
		{
			name: "distinct stays on the select line",
			sql:  "select distinct a from t",
			want: "SELECT DISTINCT\n    a\nFROM\n    t\n",
		},
		{
			name: "insert",
			sql:  "insert into t (a, b) values (1, 2), (3, 4)",
			want: "INSERT INTO t (a, b)\nVALUES\n    (1, 2),\n    (3, 4)\n",
		},
		{
			name: "update",
			sql:  "update t set x = :x, y = y + 1 where id = :id",
			want: "UPDATE\n    t\nSET\n    x = :x,\n    y = y + 1\nWHERE\n    id = :id\n",
		},
		{
			name: "function arguments stay inline",
			sql:  "select count( * ), max(a), nvl(b, 0), -c from t",
			want: "SELECT\n    COUNT(*),\n    MAX(a),\n    NVL(b, 0),\n    -c\nFROM\n    t\n",
		},
		{
			name: "function paren on new line",
			sql:  "select max(a) from t",
			rule: func(r *format.Rule) { r.NewLineFunctionParen = true },
			want: "SELECT\n    MAX(\n        a\n    )\nFROM\n    t\n",
		},
		{
			name: "datatype paren",
			sql:  "create table t (id number(10), name varchar2(20))",
			want: "CREATE TABLE t (id NUMBER(10), name VARCHAR2(20))\n",
		},
		{
			name: "create view",
			sql:  "create or replace view v as select a from t",
			want: "CREATE OR REPLACE VIEW v AS\nSELECT\n    a\nFROM\n    t\n",
		},
		{
			name: "in list one per line",
			sql:  "select a from t where a in (1, 2)",
			rule: func(r *format.Rule) { r.InSpecialFormat = false },
			want: "SELECT\n    a\nFROM\n    t\nWHERE\n    a IN (\n        1,\n        2\n    )\n",
		},
		{
			name: "between compact",
			sql:  "select a from t where a between 1 and 2 and b = 3",
			want: "SELECT\n    a\nFROM\n    t\nWHERE\n    a BETWEEN 1 AND 2\n    AND b = 3\n",
		},
		{
			name: "between split",
			sql:  "select a from t where a between 1 and 2",
			rule: func(r *format.Rule) { r.BetweenSpecialFormat = false },
			want: "SELECT\n    a\nFROM\n    t\nWHERE\n    a BETWEEN 1\n    AND 2\n",
		},
		{
			name: "decode pairs",
			sql:  "select decode(s, 1, 'a', 2, 'b', 'c') from t",
			want: "SELECT\n    DECODE(\n        s,\n        1, 'a',\n        2, 'b',\n        'c'\n    )\nFROM\n    t\n",
		},
		{
			name: "decode inline",
			sql:  "select decode(s, 1, 'a', 'c') from t",
			rule: func(r *format.Rule) { r.DecodeSpecialFormat = false },
			want: "SELECT\n    DECODE(s, 1, 'a', 'c')\nFROM\n    t\n",
		},
		{
			name: "keyword and name case",
			sql:  "select a from t order by a",
			rule: func(r *format.Rule) {
				r.ConvertKeyword = format.CaseCapitalize
				r.ConvertName = format.CaseUpper
			},
			want: "Select\n    A\nFrom\n    T\nOrder By\n    A\n",
		},
		{
			name: "keywords untouched",
			sql:  "select a from t",
			rule: func(r *format.Rule) { r.ConvertKeyword = format.CaseNone },
			want: "select\n    a\nfrom\n    t\n",
		},
		{
			name: "blank lines kept",
			sql:  "select a\n\n\nfrom t",
			want: "SELECT\n    a\n\nFROM\n    t\n",
		},
		{
			name: "blank lines removed",
			sql:  "select a\n\n\nfrom t",
			rule: func(r *format.Rule) { r.RemoveEmptyLine = true },
			want: "SELECT\n    a\nFROM\n    t\n",
		},
		{
			name: "blank lines indented",
			sql:  "select a,\n\nb from t",
			rule: func(r *format.Rule) { r.IndentEmptyLine = true },
			want: "SELECT\n    a,\n    \n    b\nFROM\n    t\n",
		},
		{
			name: "comments removed",
			sql:  "select a -- first\n, b /* second */ from t",
			rule: func(r *format.Rule) { r.RemoveComment = true },
			want: "SELECT\n    a,\n    b\nFROM\n    t\n",
		},
		{
			name: "semicolon separator",
			sql:  "select 1 from dual; delete from t",
			rule: func(r *format.Rule) { r.OutSQLSeparator = format.SeparatorSemicolon },
			want: "SELECT\n    1\nFROM\n    dual;\nDELETE\nFROM\n    t;\n",
		},
		{
			name: "slash separator",
			sql:  "select 1 from dual; delete from t",
			rule: func(r *format.Rule) { r.OutSQLSeparator = format.SeparatorSlash },
			want: "SELECT\n    1\nFROM\n    dual\n/\nDELETE\nFROM\n    t\n/\n",
		},
		{
			name: "separator kept as written",
			sql:  "select 1 from dual\n/\n",
			want: "SELECT\n    1\nFROM\n    dual\n/\n",
		},
		{
			name: "crlf",
			sql:  "select a from t",
			rule: func(r *format.Rule) { r.OutNewLineCode = format.NewLineCRLF },
			want: "SELECT\r\n    a\r\nFROM\r\n    t\r\n",
		},
		{
			name: "custom indent",
			sql:  "select a from t",
			rule: func(r *format.Rule) { r.IndentString = "\t" },
			want: "SELECT\n\ta\nFROM\n\tt\n",
		},
		{
			name: "empty input",
			sql:  "  \n ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := lfRule()
			if tt.rule != nil {
				tt.rule(&rule)
			}
			got, err := format.Format(tt.sql, rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

var idempotencyCorpus = []string{
	"select a, b from t where a = 1 and (b = 2 or b = 3) order by a",
	"SELECT DISTINCT a AS x, b y FROM s.t tt WHERE a IS NOT NULL",
	"select count(*), max(a) m, cast(b as varchar2(10)), upper(c) from t group by c having count(*) > 1",
	"select * from a x left outer join b y on x.id = y.id join c using (id), d",
	"select * from a, b where a.id = b.id(+)",
	"select a from t union all select b from u minus select c from v",
	"select * from (select a from t intersect select a from u) s",
	"select case when a = 1 then 'x' when a = 2 then 'y' else 'z' end as label from t",
	"select row_number() over (partition by a order by b desc nulls last) rn from t",
	"select a from t where x in (select y from u) and not exists (select 1 from v)",
	"select a from t where a between 1 and 10 and b not like 'x%' and c in (1, 2, 3)",
	"select -a, a - -1, not b, a || 'x', a::int from t",
	"select decode(s, 1, 'a', 2, 'b', 'c'), extract(year from d) from t where d > date '2020-01-01'",
	"with x as (select 1 from dual), y (c) as (select 2 from dual) select * from x, y",
	"insert into t (a, b) values (:a, ?), (1, 2)",
	"update t set x = :newX, y = y + 1 where id = :id",
	"delete from t where id = $1",
	"create table t (id number(10) not null, name varchar2(20))",
	"drop table if exists s.t cascade",
	"select 1 from dual; delete from t;",
	"-- leading\n\nselect a /* mid */ from t -- trailing",
	"select a -- after a\n, b from t\n\n\nwhere c = 1",
	"select a from t for update",
	"select aaaa + bbbb + cccc + dddd + eeee + ffff, gggg from tttttttttttt where hhhh = iiii",
}

func idempotencyRules() map[string]format.Rule {
	rules := map[string]format.Rule{}
	add := func(name string, mod func(*format.Rule)) {
		r := lfRule()
		mod(&r)
		rules[name] = r
	}
	add("default", func(*format.Rule) {})
	add("lower", func(r *format.Rule) { r.ConvertKeyword = format.CaseLower; r.ConvertName = format.CaseCapitalize })
	add("comma first", func(r *format.Rule) { r.NewLineBeforeComma = true; r.NewLineBeforeAndOr = false })
	add("paren lines", func(r *format.Rule) {
		r.NewLineFunctionParen = true
		r.NewLineDataTypeParen = true
		r.InSpecialFormat = false
		r.BetweenSpecialFormat = false
		r.DecodeSpecialFormat = false
	})
	add("strip", func(r *format.Rule) { r.RemoveComment = true; r.RemoveEmptyLine = true })
	add("indent empty", func(r *format.Rule) { r.IndentEmptyLine = true; r.IndentString = "\t" })
	add("crlf slash", func(r *format.Rule) { r.OutNewLineCode = format.NewLineCRLF; r.OutSQLSeparator = format.SeparatorSlash })
	add("cr semicolon", func(r *format.Rule) { r.OutNewLineCode = format.NewLineCR; r.OutSQLSeparator = format.SeparatorSemicolon })
	add("word break", func(r *format.Rule) { r.WordBreak = true; r.Width = 30 })
	return rules
}

func TestFormat_Idempotent(t *testing.T) {
	for name, rule := range idempotencyRules() {
		for _, sql := range idempotencyCorpus {
			t.Run(name+"/"+sql, func(t *testing.T) {
				once, err := format.Format(sql, rule)
				require.NoError(t, err)
				twice, err := format.Format(once, rule)
				require.NoError(t, err)
				assert.Equal(t, once, twice)

				// Formatting never changes the token sequence.
				assertSameWords(t, sql, once, rule)
			})
		}
	}
}

// assertSameWords compares the significant tokens of a and b, ignoring
// case and separators.
func assertSameWords(t *testing.T, a, b string, rule format.Rule) {
	t.Helper()
	words := func(s string) []string {
		toks, err := lexer.Tokenize(s, nil)
		require.NoError(t, err)
		var out []string
		for _, tok := range toks {
			switch {
			case tok.Kind == token.Comment && rule.RemoveComment:
			case tok.Raw == ";", tok.Raw == "/", tok.Raw == "":
			case tok.Raw == "(*)":
				out = append(out, "(", "*", ")")
			default:
				out = append(out, strings.ToUpper(strings.Join(strings.Fields(tok.Raw), " ")))
			}
		}
		return out
	}
	assert.Equal(t, words(a), words(b))
}

func TestFormat_WordBreak(t *testing.T) {
	rule := lfRule()
	rule.WordBreak = true
	rule.Width = 20

	got, err := format.Format("select aaaa + bbbb + cccc + dddd + eeee from t", rule)
	require.NoError(t, err)
	assert.Equal(t, "SELECT\n    aaaa + bbbb +\n        cccc + dddd\n        + eeee\nFROM\n    t\n", got)
	for _, line := range strings.Split(strings.TrimSuffix(got, "\n"), "\n") {
		assert.LessOrEqual(t, utf8.RuneCountInString(line), rule.Width, line)
	}
}

func TestFormat_Comments(t *testing.T) {
	got, err := format.Format("-- head\nselect a /* mid */ from t -- tail", lfRule())
	require.NoError(t, err)
	assert.Equal(t, "-- head\nSELECT\n    a /* mid */\nFROM\n    t -- tail\n", got)
}

func TestUnformat(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		rule func(*format.Rule)
		want string
	}{
		{
			name: "formatted input",
			sql:  "SELECT\n    a,\n    b\nFROM\n    t\nWHERE\n    a = 1\n    AND (b = 2 OR b = 3)\n",
			want: "SELECT a, b FROM t WHERE a = 1 AND (b = 2 OR b = 3)",
		},
		{
			name: "paren and comma spacing",
			sql:  "select count ( * ) , max( a ) , t . x from t",
			want: "SELECT COUNT(*), MAX(a), t.x FROM t",
		},
		{
			name: "line comment keeps its break",
			sql:  "select a -- c\nfrom t",
			want: "SELECT a -- c\nFROM t",
		},
		{
			name: "comments stripped",
			sql:  "select a -- c\nfrom /* x */ t",
			rule: func(r *format.Rule) { r.RemoveComment = true },
			want: "SELECT a FROM t",
		},
		{
			name: "statements",
			sql:  "select 1 from dual ;\n\n select 2 from dual;",
			want: "SELECT 1 FROM dual; SELECT 2 FROM dual;",
		},
		{
			name: "signs do not merge into comments",
			sql:  "select a - - b, - -c from t",
			want: "SELECT a - -b, - -c FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := lfRule()
			if tt.rule != nil {
				tt.rule(&rule)
			}
			got, err := format.Unformat(tt.sql, rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := format.Unformat(got, rule)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestFormat_LexFault(t *testing.T) {
	_, err := format.Format("select 'abc", lfRule())
	var lexErr *lexer.LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 7, lexErr.Pos.Offset)

	_, err = format.Unformat("select /* open", lfRule())
	require.ErrorAs(t, err, &lexErr)
}

func TestFormatError(t *testing.T) {
	inner := errors.New("boom")
	err := &format.FormatError{Err: inner}
	assert.Equal(t, "format: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestNew_DefaultsIndent(t *testing.T) {
	f := format.New(format.Rule{}, nil)
	assert.Equal(t, "    ", f.Rule().IndentString)

	got, err := f.Unformat("select  a from t")
	require.NoError(t, err)
	assert.Equal(t, "select a from t", got)
}

func TestRuleEnums_Text(t *testing.T) {
	var c format.Case
	require.NoError(t, c.UnmarshalText([]byte(" Capitalize ")))
	assert.Equal(t, format.CaseCapitalize, c)
	assert.EqualError(t, c.UnmarshalText([]byte("title")), `invalid case "title" (want none, upper, lower or capitalize)`)

	var n format.NewLine
	require.NoError(t, n.UnmarshalText([]byte("CRLF")))
	assert.Equal(t, "\r\n", n.Code())
	assert.Error(t, n.UnmarshalText([]byte("unix")))

	var s format.Separator
	require.NoError(t, s.UnmarshalText([]byte("slash")))
	b, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "slash", string(b))
	assert.Error(t, s.UnmarshalText([]byte("go")))
}
