package format

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Case is a letter-case conversion applied to keywords or names.
type Case uint8

// Case conversions.
const (
	CaseNone Case = iota
	CaseUpper
	CaseLower
	CaseCapitalize
)

var caseNames = map[Case]string{
	CaseNone:       "none",
	CaseUpper:      "upper",
	CaseLower:      "lower",
	CaseCapitalize: "capitalize",
}

func (c Case) String() string {
	if s, ok := caseNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Case(%d)", c)
}

// MarshalText implements encoding.TextMarshaler.
func (c Case) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Case) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for k, v := range caseNames {
		if v == s {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("invalid case %q (want none, upper, lower or capitalize)", s)
}

// Apply converts s.
func (c Case) Apply(s string) string {
	switch c {
	case CaseUpper:
		return strings.ToUpper(s)
	case CaseLower:
		return strings.ToLower(s)
	case CaseCapitalize:
		return cases.Title(language.Und).String(strings.ToLower(s))
	}
	return s
}

// NewLine selects the line terminator of formatted output.
type NewLine uint8

// Line terminators.
const (
	NewLineSystem NewLine = iota
	NewLineCRLF
	NewLineCR
	NewLineLF
)

var newLineNames = map[NewLine]string{
	NewLineSystem: "system",
	NewLineCRLF:   "crlf",
	NewLineCR:     "cr",
	NewLineLF:     "lf",
}

func (n NewLine) String() string {
	if s, ok := newLineNames[n]; ok {
		return s
	}
	return fmt.Sprintf("NewLine(%d)", n)
}

// MarshalText implements encoding.TextMarshaler.
func (n NewLine) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NewLine) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for k, v := range newLineNames {
		if v == s {
			*n = k
			return nil
		}
	}
	return fmt.Errorf("invalid newline %q (want system, crlf, cr or lf)", s)
}

// Code returns the terminator bytes.
func (n NewLine) Code() string {
	switch n {
	case NewLineCRLF:
		return "\r\n"
	case NewLineCR:
		return "\r"
	case NewLineLF:
		return "\n"
	}
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// Separator selects how statements are terminated in formatted output.
type Separator uint8

// Statement separators.
const (
	SeparatorNone      Separator = iota // keep whatever the input had
	SeparatorSlash                      // "/" on its own line
	SeparatorSemicolon                  // ";" after every statement
)

var separatorNames = map[Separator]string{
	SeparatorNone:      "none",
	SeparatorSlash:     "slash",
	SeparatorSemicolon: "semicolon",
}

func (s Separator) String() string {
	if n, ok := separatorNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Separator(%d)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Separator) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Separator) UnmarshalText(b []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(b)))
	for k, n := range separatorNames {
		if n == v {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("invalid separator %q (want none, slash or semicolon)", v)
}

// Rule is the formatter configuration.
type Rule struct {
	ConvertKeyword Case   `koanf:"convert_keyword" json:"convert_keyword"`
	ConvertName    Case   `koanf:"convert_name" json:"convert_name"`
	IndentString   string `koanf:"indent_string" json:"indent_string"`

	NewLineBeforeComma   bool `koanf:"newline_before_comma" json:"newline_before_comma"`
	NewLineBeforeAndOr   bool `koanf:"newline_before_and_or" json:"newline_before_and_or"`
	NewLineDataTypeParen bool `koanf:"newline_datatype_paren" json:"newline_datatype_paren"`
	NewLineFunctionParen bool `koanf:"newline_function_paren" json:"newline_function_paren"`

	// DecodeSpecialFormat lays DECODE out one search/result pair per line.
	DecodeSpecialFormat bool `koanf:"decode_special_format" json:"decode_special_format"`
	// InSpecialFormat keeps IN lists on one line.
	InSpecialFormat bool `koanf:"in_special_format" json:"in_special_format"`
	// BetweenSpecialFormat keeps BETWEEN x AND y on one line.
	BetweenSpecialFormat bool `koanf:"between_special_format" json:"between_special_format"`

	RemoveComment   bool `koanf:"remove_comment" json:"remove_comment"`
	RemoveEmptyLine bool `koanf:"remove_empty_line" json:"remove_empty_line"`
	IndentEmptyLine bool `koanf:"indent_empty_line" json:"indent_empty_line"`

	WordBreak bool `koanf:"word_break" json:"word_break"`
	Width     int  `koanf:"width" json:"width"`

	OutNewLineCode  NewLine   `koanf:"out_newline_code" json:"out_newline_code"`
	OutSQLSeparator Separator `koanf:"out_sql_separator" json:"out_sql_separator"`
}

// DefaultRule returns the default formatter configuration.
func DefaultRule() Rule {
	return Rule{
		ConvertKeyword:       CaseUpper,
		ConvertName:          CaseNone,
		IndentString:         "    ",
		NewLineBeforeAndOr:   true,
		DecodeSpecialFormat:  true,
		InSpecialFormat:      true,
		BetweenSpecialFormat: true,
		Width:                80,
		OutNewLineCode:       NewLineSystem,
		OutSQLSeparator:      SeparatorNone,
	}
}
