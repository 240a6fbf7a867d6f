package services

import (
	"fmt"
	"net/url"
	"strings"
)

const resetMailSubject = "Reset your password"

// BuildResetLink embeds the plaintext reset token in the recovery page
// URL. The token is query-escaped even though the generator only emits
// hex; the link must stay valid if the token format ever changes.
func BuildResetLink(baseURL, token string) string {
	return strings.TrimSuffix(baseURL, "/") + "/reset-password.html?token=" + url.QueryEscape(token)
}

// BuildResetMail returns the subject and plain-text body of the
// password-reset message for a given recovery link.
func BuildResetMail(link string) (subject, body string) {
	body = fmt.Sprintf(
		"We received a request to reset your password.\n\n"+
			"Open the link below to choose a new one:\n\n%s\n\n"+
			"If you did not request this, you can ignore this message.\n",
		link,
	)
	return resetMailSubject, body
}
