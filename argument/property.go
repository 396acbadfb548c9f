package argument

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var accessorPrefixes = []string{"Get", "Set", "Is"}

// PropertyName derives a bean-style property name from a method name:
// an accessor prefix (Get, Set, Is) followed by an upper case rune is
// stripped and the first rune is lower-cased.
//
//	GetBestFriend -> bestFriend
//	IsActive      -> active
//	Age           -> age
//	Getaway       -> getaway
func PropertyName(method string) string {
	for _, prefix := range accessorPrefixes {
		rest, ok := strings.CutPrefix(method, prefix)
		if !ok || rest == "" {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
			return LowerFirstChar(rest)
		}
	}
	return LowerFirstChar(method)
}

// LowerFirstChar lowercases the first rune of s, turning an exported method
// name such as "Age" into the property "age".
func LowerFirstChar(s string) string {
	if s == "" {
		return ""
	}

	firstRune, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(firstRune)) + s[size:]
}
