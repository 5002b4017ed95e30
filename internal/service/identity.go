package service

import (
	"strings"
	"unicode"
)

// dniLetters maps (number mod 23) to the control letter of a Spanish
// DNI or NIE.
const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// NormalizeDocument strips every whitespace rune and upper-cases the rest.
func NormalizeDocument(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

// IsValidDocument reports whether doc is a well formed DNI (8 digits and
// a control letter) or NIE (X, Y or Z, 7 digits and a control letter)
// whose control letter matches.  For a NIE the leading letter stands for
// the digit 0, 1 or 2 in front of the seven digits.
func IsValidDocument(doc string) bool {
	doc = NormalizeDocument(doc)
	if len(doc) != 9 {
		return false
	}
	var digits string
	switch doc[0] {
	case 'X':
		digits = "0" + doc[1:8]
	case 'Y':
		digits = "1" + doc[1:8]
	case 'Z':
		digits = "2" + doc[1:8]
	default:
		digits = doc[:8]
	}
	n := 0
	for i := 0; i < len(digits); i++ {
		ch := digits[i]
		if ch < '0' || ch > '9' {
			return false
		}
		n = n*10 + int(ch-'0')
	}
	return dniLetters[n%23] == doc[8]
}
