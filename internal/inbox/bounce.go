// Package inbox scans the configured IMAP mailbox for delivery-failure
// notifications so invalid employee addresses discovered after a run
// are not silently lost.
package inbox

import (
	"regexp"
	"strings"
	"time"
)

// Email is a parsed message from the monitored mailbox.
type Email struct {
	UID        uint32
	MessageID  string
	From       string
	FromName   string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Bounce is a detected delivery failure.
type Bounce struct {
	Recipient  string // bounced employee address, empty when not extractable
	Subject    string
	ReceivedAt time.Time
}

var bouncePatterns = []regexp.Regexp{
	*regexp.MustCompile(`(?i)delivery\s+(to\s+.+\s+)?(has\s+)?failed`),
	*regexp.MustCompile(`(?i)undeliverable`),
	*regexp.MustCompile(`(?i)delivery\s+status\s+notification`),
	*regexp.MustCompile(`(?i)returned\s+mail`),
	*regexp.MustCompile(`(?i)mail\s+delivery\s+failed`),
	*regexp.MustCompile(`(?i)message\s+(could\s+)?not\s+(be\s+)?delivered`),
	*regexp.MustCompile(`(?i)delivery\s+failure`),
	*regexp.MustCompile(`(?i)permanent\s+(failure|error)`),
	*regexp.MustCompile(`(?i)address\s+rejected`),
	*regexp.MustCompile(`(?i)user\s+unknown`),
	*regexp.MustCompile(`(?i)mailbox\s+not\s+found`),
	*regexp.MustCompile(`(?i)no\s+such\s+user`),
	*regexp.MustCompile(`(?i)(mailbox|recipient|address)\s+(does\s+not|doesn't)\s+exist`),
	*regexp.MustCompile(`(?i)invalid\s+(recipient|address|mailbox)`),
	*regexp.MustCompile(`(?i)550\s+.*\s+(rejected|unknown|not\s+found)`),
	*regexp.MustCompile(`(?i)554\s+.*\s+(rejected|failed)`),
}

// Senders that indicate a bounce email
var bounceSenders = []string{
	"mailer-daemon",
	"postmaster",
	"mail delivery system",
	"mail delivery subsystem",
	"mailerdaemon",
}

var bouncedRecipientPatterns = []regexp.Regexp{
	*regexp.MustCompile(`(?i)delivery\s+to\s+(?:the\s+following\s+recipient\s+)?<?([\w.+-]+@[\w.-]+\.\w+)>?\s+(?:has\s+)?failed`),
	*regexp.MustCompile(`(?i)(?:recipient|address)[:\s]+<?([\w.+-]+@[\w.-]+\.\w+)>?`),
	*regexp.MustCompile(`(?i)<?([\w.+-]+@[\w.-]+\.\w+)>?[:\s]+(?:user\s+unknown|mailbox\s+not\s+found|no\s+such\s+user)`),
}

var emailRegex = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)

// IsBounce reports whether a message is a delivery-failure notification,
// judged by sender identity and subject/body phrasing.
func IsBounce(email *Email) bool {
	fromLower := strings.ToLower(email.From)
	fromNameLower := strings.ToLower(email.FromName)
	for _, sender := range bounceSenders {
		if strings.Contains(fromLower, sender) || strings.Contains(fromNameLower, sender) {
			return true
		}
	}

	subject := strings.ToLower(email.Subject)
	content := strings.ToLower(email.Body)
	for _, pattern := range bouncePatterns {
		if pattern.MatchString(subject) || pattern.MatchString(content) {
			return true
		}
	}
	return false
}

// BouncedRecipient extracts the failed address from a bounce message.
// Specific NDR phrasings are tried first; the fallback is the first
// address that does not look like a mail-system sender.
func BouncedRecipient(email *Email) string {
	content := email.Body + " " + email.Subject

	for _, pattern := range bouncedRecipientPatterns {
		matches := pattern.FindStringSubmatch(content)
		if len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	for _, addr := range emailRegex.FindAllString(content, -1) {
		addrLower := strings.ToLower(addr)
		isSystem := false
		for _, exclude := range []string{"mailer-daemon", "postmaster", "noreply", "no-reply"} {
			if strings.Contains(addrLower, exclude) {
				isSystem = true
				break
			}
		}
		if !isSystem {
			return addr
		}
	}

	return ""
}

// DetectBounces filters messages down to delivery failures.
func DetectBounces(emails []Email) []Bounce {
	var bounces []Bounce
	for i := range emails {
		if !IsBounce(&emails[i]) {
			continue
		}
		bounces = append(bounces, Bounce{
			Recipient:  BouncedRecipient(&emails[i]),
			Subject:    emails[i].Subject,
			ReceivedAt: emails[i].ReceivedAt,
		})
	}
	return bounces
}
