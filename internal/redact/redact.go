// Package redact masks credentials embedded in URLs and error messages before they are logged.
package redact

import "regexp"

// secretParamPattern matches values of credential-like query parameters.
var secretParamPattern = regexp.MustCompile(`(?i)((?:api_?key|access_token|token|password|passwd|secret)=)[^&\s"]+`)

// userinfoPattern matches user:password@ in URLs.
var userinfoPattern = regexp.MustCompile(`(://)[^/@\s"]+:[^/@\s"]+@`)

// String redacts credential-like query values and URL userinfo in s.
func String(s string) string {
	s = secretParamPattern.ReplaceAllString(s, "${1}[REDACTED]")
	return userinfoPattern.ReplaceAllString(s, "${1}[REDACTED]@")
}

// Error redacts err's message. A nil error yields the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
