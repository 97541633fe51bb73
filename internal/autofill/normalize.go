package autofill

import (
	"regexp"
	"strings"

	"github.com/sbr-tools/sbr-cli/internal/config"
	"github.com/sbr-tools/sbr-cli/internal/sheet"
)

var (
	nonDigit   = regexp.MustCompile(`\D+`)
	decimalNum = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// NormalizePhone keeps only the digits of s.
func NormalizePhone(s string) string {
	return nonDigit.ReplaceAllString(sheet.NormalizeSpace(s), "")
}

// NormalizeCoordinate reads the first signed decimal in s, accepting a comma
// as the decimal separator. It returns "" when there is none.
func NormalizeCoordinate(s string) string {
	s = strings.ReplaceAll(sheet.NormalizeSpace(s), ",", ".")
	return decimalNum.FindString(s)
}

// EmailAction is what the filler does with the email toggle and input.
type EmailAction int

const (
	// EmailKeep leaves the toggle and the field alone.
	EmailKeep EmailAction = iota
	// EmailSet turns the toggle on and writes the spreadsheet value.
	EmailSet
	// EmailClear turns the toggle off and empties the field.
	EmailClear
)

func (a EmailAction) String() string {
	switch a {
	case EmailSet:
		return "set"
	case EmailClear:
		return "clear"
	default:
		return "keep"
	}
}

// DecideEmail applies the email policy to the spreadsheet value and the value
// currently shown in the form.
func DecideEmail(policy, sheetValue, liveValue string) EmailAction {
	if policy == config.EmailDisable {
		return EmailClear
	}
	switch {
	case strings.TrimSpace(sheetValue) != "":
		return EmailSet
	case strings.TrimSpace(liveValue) != "":
		return EmailKeep
	default:
		return EmailClear
	}
}

// containsFold reports whether needle occurs in haystack, ignoring case and
// whitespace differences. needle is matched literally.
func containsFold(haystack, needle string) bool {
	needle = strings.ToLower(sheet.NormalizeSpace(needle))
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(sheet.NormalizeSpace(haystack)), needle)
}
