package fetcher

import (
	"bytes"
	"errors"
	"fmt"
	"livegame-tracker/internal/constants"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// selector is a single compound selector: tag, #id, .class and [attr] or
// [attr=value] parts in any combination. Combinators are not supported.
type selector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name  string
	value string
	any   bool
}

func parseSelector(s string) (selector, error) {
	var sel selector
	s = strings.TrimSpace(s)
	if s == "" {
		return sel, errors.New("empty selector")
	}
	i := 0
	readIdent := func() string {
		start := i
		for i < len(s) && !strings.ContainsRune("#.[ >+~,", rune(s[i])) {
			i++
		}
		return s[start:i]
	}

	sel.tag = strings.ToLower(readIdent())
	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			sel.id = readIdent()
		case '.':
			i++
			sel.classes = append(sel.classes, readIdent())
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return sel, fmt.Errorf("unterminated attribute in %q", s)
			}
			body := s[i+1 : i+end]
			i += end + 1
			name, value, hasValue := strings.Cut(body, "=")
			m := attrMatch{name: strings.ToLower(strings.TrimSpace(name)), any: !hasValue}
			if hasValue {
				m.value = strings.Trim(strings.TrimSpace(value), `"'`)
			}
			if m.name == "" {
				return sel, fmt.Errorf("empty attribute name in %q", s)
			}
			sel.attrs = append(sel.attrs, m)
		default:
			return sel, fmt.Errorf("unsupported selector %q", s)
		}
	}
	return sel, nil
}

func (sel selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if sel.tag != "" && n.Data != sel.tag {
		return false
	}
	attr := func(name string) (string, bool) {
		for _, a := range n.Attr {
			if a.Key == name {
				return a.Val, true
			}
		}
		return "", false
	}
	if sel.id != "" {
		if v, ok := attr("id"); !ok || v != sel.id {
			return false
		}
	}
	if len(sel.classes) > 0 {
		v, _ := attr("class")
		have := strings.Fields(v)
		for _, want := range sel.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, m := range sel.attrs {
		v, ok := attr(m.name)
		if !ok || (!m.any && v != m.value) {
			return false
		}
	}
	return true
}

func find(n *html.Node, sel selector) *html.Node {
	if sel.matches(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, sel); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// ExtractCounter finds the element matching selector in page and parses
// its text as a player count.
func ExtractCounter(page []byte, selectorText string) (int, error) {
	sel, err := parseSelector(selectorText)
	if err != nil {
		return 0, err
	}
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return 0, fmt.Errorf("failed to parse page: %w", err)
	}
	node := find(doc, sel)
	if node == nil {
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, selectorText)
	}
	return ParseCount(textContent(node))
}

// ParseCount reads the first integer in text, accepting thousands
// separators ("15,342", "15 342", "15.342").
func ParseCount(text string) (int, error) {
	runes := []rune(text)
	start := -1
	for i, r := range runes {
		if isDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, fmt.Errorf("%w: no digits in %q", ErrCounterNotFound, strings.TrimSpace(text))
	}
	if start > 0 && runes[start-1] == '-' {
		return 0, fmt.Errorf("negative count %q", strings.TrimSpace(text))
	}

	var digits strings.Builder
	for i := start; i < len(runes); i++ {
		r := runes[i]
		if isDigit(r) {
			digits.WriteRune(r)
			continue
		}
		if isSeparator(r) && i+1 < len(runes) && isDigit(runes[i+1]) {
			continue
		}
		break
	}

	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, fmt.Errorf("invalid count %q: %w", digits.String(), err)
	}
	if n > constants.MaxPlayers {
		return 0, fmt.Errorf("count %d above %d", n, constants.MaxPlayers)
	}
	return n, nil
}

func isSeparator(r rune) bool {
	switch r {
	case ',', '.', ' ', '\u00a0', '\u202f', '\'':
		return true
	}
	return false
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
