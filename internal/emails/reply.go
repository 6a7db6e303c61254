package emails

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"otmsite/internal/models"
)

// MaxUnstrippedLength bounds a body whose quoted history could not be located.
const MaxUnstrippedLength = 500

// quoteMarkers recognise the attribution line that introduces quoted history.
var quoteMarkers = []*regexp.Regexp{
	// On Thu, May 8, 2025 at 8:46 AM
	regexp.MustCompile(`(?i)On [A-Za-z]{3}, [A-Za-z]{3} \d+, \d{4}(,| at) \d+:\d+ (AM|PM)`),
	// On Thu, May 8, 2025, 8:46 AM
	regexp.MustCompile(`(?i)On [A-Za-z]{3}, [A-Za-z]{3} \d+, \d{4}, \d+:\d+ (AM|PM)`),
	// On 2025-05-08 8:46
	regexp.MustCompile(`(?i)On \d{4}-\d{2}-\d{2} \d+:\d+`),
	// On 5/8/25 8:46
	regexp.MustCompile(`(?i)On \d{1,2}/\d{1,2}/\d{2,4} \d+:\d+`),
	// On 5/8/25, OTM wrote:
	regexp.MustCompile(`(?i)On \d{1,2}/\d{1,2}/\d{2,4}, .* wrote:`),
	// Le jeu. 8 mai 2025 à 08:46, OTM <contact@otmeducation.com> a écrit :
	regexp.MustCompile(`(?im)^Le .* a écrit\s?:`),
	// Am 08.05.2025 um 08:46 schrieb OTM:
	regexp.MustCompile(`(?im)^Am .* schrieb .*:`),
	// El jue, 8 may 2025 a las 8:46, OTM escribió:
	regexp.MustCompile(`(?im)^El .* escribió:`),
	regexp.MustCompile(`(?im)^-{2,}\s*Original Message\s*-{2,}`),
	// On Thursday, OTM wrote:
	regexp.MustCompile(`(?im)^On .* wrote:`),
}

// StripQuotedReply returns the new part of a reply body, dropping quoted
// history. It is pure: the same input always yields the same output.
func StripQuotedReply(body string) string {
	if body == "" {
		return ""
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")

	// Nested replies carry several markers; cut at the earliest one.
	cut := -1
	for _, marker := range quoteMarkers {
		if loc := marker.FindStringIndex(body); loc != nil && (cut < 0 || loc[0] < cut) {
			cut = loc[0]
		}
	}
	if cut >= 0 {
		return strings.TrimSpace(body[:cut])
	}

	if kept, ok := linesBeforeQuote(body); ok {
		return kept
	}

	trimmed := strings.TrimSpace(body)
	if utf8.RuneCountInString(trimmed) > MaxUnstrippedLength {
		runes := []rune(trimmed)
		return strings.TrimSpace(string(runes[:MaxUnstrippedLength])) + "..."
	}
	return trimmed
}

// linesBeforeQuote keeps the lines preceding the first quoted line, which is
// one starting with '>' or containing "wrote:". It reports false when the
// quote starts on the first line. Blank lines before the quote yield "".
func linesBeforeQuote(body string) (string, bool) {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") || strings.Contains(line, "wrote:") {
			if i == 0 {
				return "", false
			}
			return strings.TrimSpace(strings.Join(lines[:i], "\n")), true
		}
	}
	return "", false
}

// PrepareBody turns a parsed email into the text stored on a thread: HTML-only
// mail is flattened to text and replies lose their quoted history.
func PrepareBody(email *models.InboundEmail) {
	if strings.TrimSpace(email.Text) == "" && email.HTML != "" {
		email.Text = HTMLToText(email.HTML)
	}
	if email.IsReply() {
		email.Text = StripQuotedReply(email.Text)
	}
}
