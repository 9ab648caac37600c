// Package textutil holds small string helpers, such as the whitespace
// normalisation applied to task titles.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	specialChars = regexp.MustCompile(`[^0-9a-zA-Z._ ]+`)
	nonDigits    = regexp.MustCompile(`[^0-9]`)
	spaces       = regexp.MustCompile(`\s+`)
)

// Deserialize decodes JSON into T. Field names match case-insensitively and
// numbers, booleans and durations may be given as strings. Blank input yields
// the zero value.
func Deserialize[T any](value string) (T, error) {
	var out T
	if strings.TrimSpace(value) == "" {
		return out, nil
	}
	var raw any
	if err := sonic.UnmarshalString(value, &raw); err != nil {
		return out, err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Squash:           true,
		TagName:          "json",
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(raw); err != nil {
		return out, err
	}
	return out, nil
}

// LowerCamelCase lower-cases the first letter of value.
func LowerCamelCase(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(value)
	return string(unicode.ToLower(r)) + value[size:]
}

// NonSpecialCharacters strips diacritics and keeps only letters, digits,
// dots, underscores and spaces.
func NonSpecialCharacters(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	return specialChars.ReplaceAllString(folded, "")
}

func NumericCharacters(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return nonDigits.ReplaceAllString(value, "")
}

// RemoveExtraSpaces collapses runs of whitespace into one space.
func RemoveExtraSpaces(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return spaces.ReplaceAllString(value, " ")
}
