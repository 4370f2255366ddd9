// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixfmt converts Matrix HTML to Slack mrkdwn.
package matrixfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	replyRe      = regexp.MustCompile(`(?s)<mx-reply>.*?</mx-reply>`)
	strongRe     = regexp.MustCompile(`(?s)<(?:strong|b)>(.*?)</(?:strong|b)>`)
	emRe         = regexp.MustCompile(`(?s)<(?:em|i)>(.*?)</(?:em|i)>`)
	delRe        = regexp.MustCompile(`(?s)<(?:del|s|strike)>(.*?)</(?:del|s|strike)>`)
	codeRe       = regexp.MustCompile(`(?s)<code[^>]*>(.*?)</code>`)
	preRe        = regexp.MustCompile(`(?s)<pre>(?:<code[^>]*>)?(.*?)(?:</code>)?</pre>`)
	linkRe       = regexp.MustCompile(`(?s)<a href="([^"]+)"[^>]*>(.*?)</a>`)
	brRe         = regexp.MustCompile(`<br\s*/?>`)
	blockquoteRe = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	headingRe    = regexp.MustCompile(`(?s)<h[1-6]>(.*?)</h[1-6]>`)
	ulRe         = regexp.MustCompile(`(?s)<ul>(.*?)</ul>`)
	olRe         = regexp.MustCompile(`(?s)<ol>(.*?)</ol>`)
	liRe         = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	pRe          = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
)

const pillPrefix = "https://matrix.to/#/"

// quoteMarker stands in for a leading ">" until text has been escaped.
const quoteMarker = "\x01"

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes the characters Slack reserves for control sequences.
func Escape(text string) string {
	return escaper.Replace(text)
}

// Parse converts Matrix message content to Slack mrkdwn.
func Parse(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}

	// If no HTML format, return plain text body.
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return Escape(content.Body)
	}

	text := replyRe.ReplaceAllString(content.FormattedBody, "")

	var held []string
	hold := func(rendered string) string {
		idx := len(held)
		held = append(held, rendered)
		return "\x00" + strconv.Itoa(idx) + "\x00"
	}

	// Code first, contents are kept literally.
	text = preRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := preRe.FindStringSubmatch(match)[1]
		return hold("```\n" + Escape(html.UnescapeString(tagRe.ReplaceAllString(inner, ""))) + "\n```")
	})
	text = codeRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := codeRe.FindStringSubmatch(match)[1]
		return hold("`" + Escape(html.UnescapeString(tagRe.ReplaceAllString(inner, ""))) + "`")
	})

	// Links. User pills collapse to their label.
	text = linkRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		href := html.UnescapeString(parts[1])
		label := html.UnescapeString(tagRe.ReplaceAllString(parts[2], ""))
		switch {
		case strings.HasPrefix(href, pillPrefix):
			return hold(Escape(label))
		case label == "" || label == href:
			return hold("<" + Escape(href) + ">")
		default:
			return hold("<" + Escape(href) + "|" + Escape(label) + ">")
		}
	})

	// Inline formatting.
	text = strongRe.ReplaceAllString(text, "*$1*")
	text = emRe.ReplaceAllString(text, "_${1}_")
	text = delRe.ReplaceAllString(text, "~$1~")

	// Slack has no headings, bold is the closest.
	text = headingRe.ReplaceAllString(text, "*$1*\n")

	text = blockquoteRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := brRe.ReplaceAllString(blockquoteRe.FindStringSubmatch(match)[1], "\n")
		inner = pRe.ReplaceAllString(inner, "$1\n")
		lines := strings.Split(strings.TrimSpace(inner), "\n")
		for i, line := range lines {
			lines[i] = quoteMarker + " " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n") + "\n"
	})

	text = ulRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for _, item := range items {
			result = append(result, "• "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n") + "\n"
	})

	text = olRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for i, item := range items {
			result = append(result, strconv.Itoa(i+1)+". "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n") + "\n"
	})

	// Paragraphs.
	text = pRe.ReplaceAllString(text, "$1\n\n")

	// Line breaks.
	text = brRe.ReplaceAllString(text, "\n")

	// Strip remaining HTML tags, then escape the remaining text for Slack.
	text = tagRe.ReplaceAllString(text, "")
	text = Escape(html.UnescapeString(text))
	text = strings.ReplaceAll(text, quoteMarker, ">")

	for i, rendered := range held {
		text = strings.Replace(text, "\x00"+strconv.Itoa(i)+"\x00", rendered, 1)
	}

	return strings.TrimSpace(text)
}
