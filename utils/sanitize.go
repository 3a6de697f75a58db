package utils

import "github.com/microcosm-cc/bluemonday"

var textPolicy = bluemonday.StrictPolicy()

// SanitizeText strips all markup from user or generator supplied text.
func SanitizeText(input string) string {
	return textPolicy.Sanitize(input)
}
