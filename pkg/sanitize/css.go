package sanitize

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// allowedProperties lists the inline CSS properties kept in email HTML.
var allowedProperties = map[string]bool{
	"background":       true,
	"background-color": true,
	"border":           true,
	"border-bottom":    true,
	"border-collapse":  true,
	"border-color":     true,
	"border-left":      true,
	"border-radius":    true,
	"border-right":     true,
	"border-spacing":   true,
	"border-top":       true,
	"box-sizing":       true,
	"clear":            true,
	"color":            true,
	"display":          true,
	"float":            true,
	"font":             true,
	"font-family":      true,
	"font-size":        true,
	"font-style":       true,
	"font-weight":      true,
	"height":           true,
	"letter-spacing":   true,
	"line-height":      true,
	"list-style-type":  true,
	"margin":           true,
	"margin-bottom":    true,
	"margin-left":      true,
	"margin-right":     true,
	"margin-top":       true,
	"max-height":       true,
	"max-width":        true,
	"min-height":       true,
	"min-width":        true,
	"overflow":         true,
	"padding":          true,
	"padding-bottom":   true,
	"padding-left":     true,
	"padding-right":    true,
	"padding-top":      true,
	"table-layout":     true,
	"text-align":       true,
	"text-decoration":  true,
	"text-indent":      true,
	"text-shadow":      true,
	"text-transform":   true,
	"vertical-align":   true,
	"white-space":      true,
	"width":            true,
	"word-break":       true,
	"word-wrap":        true,
}

// blockedFunctions may fetch remote resources or run script in some clients.
var blockedFunctions = map[string]bool{
	"url(":        true,
	"expression(": true,
	"image-set(":  true,
}

// Style filters a style attribute down to allowed declarations, formatted as "prop: value" pairs
// joined by "; ".  A value that loads a remote resource drops its declaration.  Unparseable input
// yields "".
func Style(input string) string {
	decls, ok := declarations(input)
	if !ok {
		return ""
	}
	kept := make([]string, 0, len(decls))
	for _, d := range decls {
		if clean, ok := cleanDeclaration(d); ok {
			kept = append(kept, clean)
		}
	}
	return strings.Join(kept, "; ")
}

// declarations splits the token stream on top level semicolons.
func declarations(input string) ([][]*scanner.Token, bool) {
	var decls [][]*scanner.Token
	var cur []*scanner.Token
	scan := scanner.New(input)
	for {
		t := scan.Next()
		switch {
		case t.Type == scanner.TokenError:
			return nil, false
		case t.Type == scanner.TokenEOF:
			if len(cur) > 0 {
				decls = append(decls, cur)
			}
			return decls, true
		case t.Type == scanner.TokenChar && t.Value == ";":
			decls = append(decls, cur)
			cur = nil
		case t.Type == scanner.TokenComment:
			// Dropped.
		default:
			cur = append(cur, t)
		}
	}
}

// cleanDeclaration formats a single "property: value" declaration, reporting false if it is not
// allowed.
func cleanDeclaration(tokens []*scanner.Token) (string, bool) {
	tokens = trimSpace(tokens)
	if len(tokens) < 3 || tokens[0].Type != scanner.TokenIdent {
		return "", false
	}
	prop := strings.ToLower(tokens[0].Value)
	if !allowedProperties[prop] {
		return "", false
	}
	rest := trimSpace(tokens[1:])
	if len(rest) < 2 || rest[0].Type != scanner.TokenChar || rest[0].Value != ":" {
		return "", false
	}
	value := &strings.Builder{}
	space := false
	for _, t := range trimSpace(rest[1:]) {
		switch t.Type {
		case scanner.TokenURI:
			return "", false
		case scanner.TokenFunction:
			if blockedFunctions[strings.ToLower(t.Value)] {
				return "", false
			}
		case scanner.TokenS:
			space = true
			continue
		}
		if space {
			value.WriteByte(' ')
			space = false
		}
		value.WriteString(t.Value)
	}
	if value.Len() == 0 {
		return "", false
	}
	return prop + ": " + value.String(), true
}

func trimSpace(tokens []*scanner.Token) []*scanner.Token {
	for len(tokens) > 0 && tokens[0].Type == scanner.TokenS {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].Type == scanner.TokenS {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}
