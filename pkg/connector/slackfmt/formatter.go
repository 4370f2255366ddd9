// Copyright 2024-2026 Aiku AI

// Package slackfmt converts Slack mrkdwn to Matrix HTML.
package slackfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// ParsedMessage holds the result of converting Slack mrkdwn to Matrix format.
type ParsedMessage struct {
	Body          string
	Format        event.Format
	FormattedBody string
}

var (
	boldRe      = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicRe    = regexp.MustCompile(`\b_([^_\n]+)_\b`)
	strikeRe    = regexp.MustCompile(`~([^~\n]+)~`)
	codeRe      = regexp.MustCompile("`([^`\n]+)`")
	codeBlockRe = regexp.MustCompile("(?s)```\\n?(.*?)```")
	tokenRe     = regexp.MustCompile(`<([^<>\n]+)>`)
	emojiRe     = regexp.MustCompile(`:([a-z0-9_+\-]+):`)
	quoteRe     = regexp.MustCompile(`(?m)^&gt;`)
)

// Slack escapes exactly these three characters in message text.
var unescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// Unescape reverses Slack's &amp;, &lt; and &gt; escaping.
func Unescape(text string) string {
	return unescaper.Replace(text)
}

// Plain converts Slack mrkdwn to plain text: control sequences such as
// <@U123|alice> and <https://x|label> are resolved, entities are unescaped
// and emoji shortcodes are replaced. Emphasis markers are kept.
func Plain(text string) string {
	return mapSegments(text, func(seg string) string {
		return replaceEmoji(Unescape(seg))
	}, func(inner string) string {
		return resolveToken(inner).plain
	})
}

// Parse converts a Slack mrkdwn message to Matrix event content.
func Parse(text string) *ParsedMessage {
	if text == "" {
		return &ParsedMessage{}
	}
	body := Plain(text)

	hasFormatting := boldRe.MatchString(text) ||
		italicRe.MatchString(text) ||
		strikeRe.MatchString(text) ||
		codeRe.MatchString(text) ||
		codeBlockRe.MatchString(text) ||
		tokenRe.MatchString(text) ||
		quoteRe.MatchString(text)

	if !hasFormatting {
		return &ParsedMessage{Body: body}
	}

	var placeholders []string
	hold := func(rendered string) string {
		idx := len(placeholders)
		placeholders = append(placeholders, rendered)
		return "\x00" + strconv.Itoa(idx) + "\x00"
	}

	// Step 1: Code blocks and inline code are taken out verbatim.
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		content := codeBlockRe.FindStringSubmatch(match)[1]
		return hold("<pre><code>" + html.EscapeString(Unescape(content)) + "</code></pre>")
	})
	processed = codeRe.ReplaceAllStringFunc(processed, func(match string) string {
		content := codeRe.FindStringSubmatch(match)[1]
		return hold("<code>" + html.EscapeString(Unescape(content)) + "</code>")
	})

	// Step 2: Links and mentions. Everything else is unescaped and
	// re-escaped for HTML.
	processed = mapSegments(processed, func(seg string) string {
		return html.EscapeString(replaceEmoji(Unescape(seg)))
	}, func(inner string) string {
		return hold(resolveToken(inner).html)
	})

	// Step 3: Blockquotes, line by line.
	lines := strings.Split(processed, "\n")
	for i, line := range lines {
		if quoted, ok := strings.CutPrefix(line, "&gt;"); ok {
			lines[i] = "<blockquote>" + strings.TrimPrefix(quoted, " ") + "</blockquote>"
		}
	}
	formatted := strings.Join(lines, "\n")

	// Step 4: Inline formatting.
	formatted = boldRe.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = italicRe.ReplaceAllString(formatted, "<em>$1</em>")
	formatted = strikeRe.ReplaceAllString(formatted, "<del>$1</del>")

	// Step 5: Restore held fragments.
	for i, rendered := range placeholders {
		formatted = strings.Replace(formatted, "\x00"+strconv.Itoa(i)+"\x00", rendered, 1)
	}

	formatted = strings.ReplaceAll(formatted, "</blockquote>\n", "</blockquote>")
	formatted = strings.ReplaceAll(formatted, "\n", "<br/>")

	return &ParsedMessage{
		Body:          body,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
}

// mapSegments splits text around <...> control sequences, passing plain
// segments to plain and the inside of each sequence to token.
func mapSegments(text string, plain func(string) string, token func(string) string) string {
	var out strings.Builder
	last := 0
	for _, loc := range tokenRe.FindAllStringSubmatchIndex(text, -1) {
		out.WriteString(plain(text[last:loc[0]]))
		out.WriteString(token(text[loc[2]:loc[3]]))
		last = loc[1]
	}
	out.WriteString(plain(text[last:]))
	return out.String()
}

type resolved struct {
	plain string
	html  string
}

// resolveToken renders the inside of a Slack control sequence.
func resolveToken(inner string) resolved {
	target, label, _ := strings.Cut(inner, "|")
	target = Unescape(target)
	label = Unescape(label)

	switch {
	case strings.HasPrefix(target, "@"):
		name := label
		if name == "" {
			name = target[1:]
		}
		name = "@" + strings.TrimPrefix(name, "@")
		return resolved{plain: name, html: html.EscapeString(name)}
	case strings.HasPrefix(target, "#"):
		name := label
		if name == "" {
			name = target[1:]
		}
		name = "#" + strings.TrimPrefix(name, "#")
		return resolved{plain: name, html: html.EscapeString(name)}
	case strings.HasPrefix(target, "!"):
		name := label
		if name == "" {
			name = "@" + strings.SplitN(target[1:], "^", 2)[0]
		}
		return resolved{plain: name, html: html.EscapeString(name)}
	}

	text := label
	if text == "" {
		text = target
	}
	if !safeURL(target) {
		return resolved{plain: text, html: html.EscapeString(text)}
	}
	plain := text
	if label != "" && label != target {
		plain = label + " (" + target + ")"
	}
	return resolved{
		plain: plain,
		html:  `<a href="` + html.EscapeString(target) + `">` + html.EscapeString(text) + `</a>`,
	}
}

func safeURL(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:")
}

func replaceEmoji(text string) string {
	if !strings.Contains(text, ":") {
		return text
	}
	return emojiRe.ReplaceAllStringFunc(text, func(match string) string {
		if emoji, ok := emojiMap[match[1:len(match)-1]]; ok {
			return emoji
		}
		return match
	})
}

// emojiMap covers the shortcodes most often seen in bridged messages.
// Unknown shortcodes are left as text.
var emojiMap = map[string]string{
	"+1":                    "\U0001f44d",
	"-1":                    "\U0001f44e",
	"heart":                 "\u2764\ufe0f",
	"smile":                 "\U0001f604",
	"slightly_smiling_face": "\U0001f642",
	"joy":                   "\U0001f602",
	"laughing":              "\U0001f606",
	"thumbsup":              "\U0001f44d",
	"thumbsdown":            "\U0001f44e",
	"wave":                  "\U0001f44b",
	"clap":                  "\U0001f44f",
	"fire":                  "\U0001f525",
	"100":                   "\U0001f4af",
	"tada":                  "\U0001f389",
	"eyes":                  "\U0001f440",
	"thinking_face":         "\U0001f914",
	"white_check_mark":      "\u2705",
	"x":                     "\u274c",
	"warning":               "\u26a0\ufe0f",
	"rocket":                "\U0001f680",
	"star":                  "\u2b50",
	"pray":                  "\U0001f64f",
}
