package messaging

import (
	"html"
	"regexp"
)

// View text uses **bold**, `code` and [text](url). Each platform gets its own rendering.
var (
	boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)
	codePattern = regexp.MustCompile("`([^`\n]+)`")
	linkPattern = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
)

// TelegramHTML renders view markup for Telegram's HTML parse mode.
func TelegramHTML(s string) string {
	s = html.EscapeString(s)
	s = linkPattern.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = boldPattern.ReplaceAllString(s, "<b>$1</b>")
	return codePattern.ReplaceAllString(s, "<code>$1</code>")
}

// WhatsAppText renders view markup with WhatsApp formatting. WhatsApp has no
// link syntax, so links become "text: url".
func WhatsAppText(s string) string {
	s = linkPattern.ReplaceAllString(s, "$1: $2")
	return boldPattern.ReplaceAllString(s, "*$1*")
}

// DiscordMarkdown returns s unchanged; Discord understands the view markup.
func DiscordMarkdown(s string) string {
	return s
}

// PlainText strips view markup for terminals.
func PlainText(s string) string {
	s = linkPattern.ReplaceAllString(s, "$1 ($2)")
	s = boldPattern.ReplaceAllString(s, "$1")
	return codePattern.ReplaceAllString(s, "$1")
}
