package session

import (
	"bytes"
	"strings"
)

// oscNotification is a detected terminal OSC 9/777 notification, used as the
// heuristic for the needs_attention flag (spec.md §4.3 step 4: "sets
// needs_attention=true when a heuristic detector observes a prompt or idle
// marker in the output").
type oscNotification struct {
	title, body, message string
}

const (
	oscIntroducer    = "\x1b]"
	oscTerminatorST  = "\x1b\\"
	oscTerminatorBEL = 0x07

	osc9Prefix   = "9;"
	osc777Prefix = "777;notify;"
)

// detectOSCNotifications scans raw PTY output for OSC 9 (simple) and OSC 777
// (rich) notification escape sequences, the same signal agents already use
// in the teacher repo to announce task completion. Either kind flips
// needs_attention for the owning session.
//
// Scanning is terminator-first: each candidate sequence's BEL or ST end is
// located before its payload is ever inspected, so the payload parser never
// needs to walk past a terminator it hasn't already found.
func detectOSCNotifications(data []byte) []oscNotification {
	var found []oscNotification

	rest := data
	for {
		start := bytes.Index(rest, []byte(oscIntroducer))
		if start < 0 {
			return found
		}
		body := rest[start+len(oscIntroducer):]

		content, remainder, ok := cutOSCSequence(body)
		if !ok {
			// No terminator anywhere after this introducer: it can't be a
			// complete sequence, but a later introducer might still start
			// one, so keep scanning past just this introducer.
			rest = body
			continue
		}
		rest = remainder

		if n, ok := parseOSCContent(content); ok {
			found = append(found, n)
		}
	}
}

// cutOSCSequence splits body at whichever OSC terminator (BEL or ST) occurs
// first, returning the payload before it and everything left to scan after.
func cutOSCSequence(body []byte) (content, remainder []byte, ok bool) {
	belAt := bytes.IndexByte(body, oscTerminatorBEL)
	stAt := bytes.Index(body, []byte(oscTerminatorST))

	switch {
	case belAt < 0 && stAt < 0:
		return nil, nil, false
	case stAt < 0 || (belAt >= 0 && belAt < stAt):
		return body[:belAt], body[belAt+1:], true
	default:
		return body[:stAt], body[stAt+len(oscTerminatorST):], true
	}
}

// parseOSCContent recognizes the two notification payload shapes this
// heuristic understands and reports whether content held a meaningful one.
func parseOSCContent(content []byte) (oscNotification, bool) {
	s := string(content)

	switch {
	case strings.HasPrefix(s, osc9Prefix):
		message := s[len(osc9Prefix):]
		if message == "" || isEscapeSequence(message) {
			return oscNotification{}, false
		}
		return oscNotification{message: message}, true

	case strings.HasPrefix(s, osc777Prefix):
		title, body, _ := strings.Cut(s[len(osc777Prefix):], ";")
		if title == "" && body == "" {
			return oscNotification{}, false
		}
		return oscNotification{title: title, body: body}, true

	default:
		return oscNotification{}, false
	}
}

// isEscapeSequence reports whether s is just digits and semicolons, the
// shape a stray escape fragment takes rather than a real message.
func isEscapeSequence(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != ';'
	}) < 0
}

// promptMarkers are shell-prompt-like suffixes that, appearing at the tail of
// freshly drained output, also indicate the session is waiting on the user.
var promptMarkers = []string{"$ ", "# ", "> ", "% "}

// looksLikePrompt reports whether chunk's tail resembles an idle shell
// prompt. This is intentionally cheap and approximate (spec.md only requires
// "a heuristic detector").
func looksLikePrompt(chunk []byte) bool {
	trimmed := strings.TrimRight(string(chunk), " \r\n")
	for _, m := range promptMarkers {
		if strings.HasSuffix(trimmed, strings.TrimRight(m, " ")) {
			return true
		}
	}
	return false
}
