package lsp

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// maxCompletionItems caps a completion list; the client asks again as the
// prefix grows.
const maxCompletionItems = 200

func (s *Server) handleCompletion(msg *JSONRPCMessage) error {
	var params CompletionParams
	if err := s.decodeParams(msg, &params); err != nil {
		return err
	}

	s.sendResponse(msg.ID, s.getCompletions(params), nil)
	return nil
}

// getCompletions offers names already used in the document, then
// functions, keywords and data types from the token rule, all matching
// the word before the cursor. Keywords follow the configured keyword case.
func (s *Server) getCompletions(params CompletionParams) *CompletionList {
	list := &CompletionList{Items: []CompletionItem{}}
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return list
	}

	prefix, rng := doc.WordBefore(params.Position)
	upper := strings.ToUpper(prefix)
	seen := map[string]bool{}

	add := func(label string, kind CompletionItemKind, detail, sortGroup string) {
		if seen[label] || !strings.HasPrefix(strings.ToUpper(label), upper) || strings.EqualFold(label, prefix) {
			return
		}
		seen[label] = true
		if len(list.Items) == maxCompletionItems {
			list.IsIncomplete = true
			return
		}
		list.Items = append(list.Items, CompletionItem{
			Label:    label,
			Kind:     kind,
			Detail:   detail,
			SortText: sortGroup + label,
			TextEdit: &TextEdit{Range: rng, NewText: label},
		})
	}

	for _, name := range documentNames(doc.Content, s.rule) {
		add(name, CompletionItemKindVariable, "name", "0")
	}

	kwCase := s.format.ConvertKeyword
	if kwCase == format.CaseCapitalize {
		kwCase = format.CaseUpper
	}
	for _, w := range s.rule.Words(token.Function) {
		add(kwCase.Apply(w), CompletionItemKindFunction, "function", "1")
	}
	for _, w := range s.rule.Words(token.None) {
		add(kwCase.Apply(w), CompletionItemKindKeyword, "keyword", "2")
	}
	for _, w := range s.rule.Words(token.Datatype) {
		add(kwCase.Apply(w), CompletionItemKindTypeParameter, "type", "3")
	}
	return list
}

// documentNames returns the distinct identifiers in content, in sorted
// order. Text after a lexical fault is ignored.
func documentNames(content string, rule *token.Rule) []string {
	toks, _ := lexer.Tokenize(content, rule)
	set := map[string]bool{}
	for _, tok := range toks {
		if tok.Kind == token.Name && tok.Subkind == token.None {
			set[tok.Raw] = true
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
