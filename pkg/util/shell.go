package util

import "strings"

// SingleQuote wraps a string in single quotes, escaping any embedded single quotes.
func SingleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// Sudo prefixes cmd with sudo unless the remote user is root.
func Sudo(user, cmd string) string {
	if user == "root" || user == "" {
		return cmd
	}
	return "sudo " + cmd
}
