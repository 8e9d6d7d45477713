// Package protocol extracts the embedded control mini-protocol from raw
// model output.
//
// Grammar, applied in extraction order:
//
//	<<KICK:target>>            stage a removal request
//	<<KICK:target|reason>>     same, with a reason
//	[[VOTE_START: a, b, c]]    open a vote with named candidates
//	[[NEXT: id1, id2]]         hand the floor to specific participants
//	[[NEXT: ALL]]              hand the floor to every enabled non-referee
//	[[NEXT: NONE]]             await user input
//	[[PUBLIC]] text            referee segment visible to everyone
//	[[PRIVATE:target]] text    referee segment visible to one target
//	[[VOTE: candidate]]        a player's inline ballot
//	[[STATE]] text             trailing hidden internal-state block
//
// Directives are removed from the displayed text. Malformed or unrecognized
// syntax degrades gracefully: unmatched brackets are left as literal text,
// unsegmented text becomes one public message, and unresolvable target
// identifiers are dropped rather than raising an error. Parsing is pure and
// idempotent.
package protocol

import (
	"regexp"
	"strings"

	"conclave/domain"
)

var (
	kickRe         = regexp.MustCompile(`<<KICK:\s*([^>|]+?)\s*(?:\|\s*([^>]*?)\s*)?>>`)
	voteStartRe    = regexp.MustCompile(`\[\[VOTE_START:([^\]]*)\]\]`)
	nextRe         = regexp.MustCompile(`\[\[NEXT:([^\]]*)\]\]`)
	segmentRe      = regexp.MustCompile(`\[\[(PUBLIC|PRIVATE:[^\]]+)\]\]`)
	inlineVoteRe   = regexp.MustCompile(`\[\[VOTE:\s*([^\]]+?)\s*\]\]`)
	trailingState  = regexp.MustCompile(`(?s)\[\[STATE\]\]\s*(.*)\z`)
	leadingPrivate = regexp.MustCompile(`\A\s*\[\[PRIVATE:\s*([^\]]+?)\s*\]\]`)
)

// NextKind discriminates the next-speaker directive.
type NextKind int

const (
	NextUnspecified NextKind = iota
	NextAll
	NextNone
	NextSome
)

// NextSpeakers is the parsed turn hand-off. IDs holds raw tokens; resolution
// against the roster happens in Resolve.
type NextSpeakers struct {
	Kind NextKind
	IDs  []string
}

// Segment is one referee-visible chunk. An empty Recipient means public.
type Segment struct {
	Recipient string
	Content   string
}

// KickDirective keeps the raw target token for later fuzzy resolution.
type KickDirective struct {
	RawTarget string
	Reason    string
}

// RefereeResult is the discriminated outcome of parsing one referee response.
type RefereeResult struct {
	Segments  []Segment
	Kick      *KickDirective
	VoteStart []string
	Next      NextSpeakers
}

// PlayerResult is the outcome of parsing one ordinary participant response.
type PlayerResult struct {
	Content   string
	Inner     string
	Recipient string
	Vote      string
}

// ParseReferee extracts kick, vote-start, and next-speaker directives, then
// splits the remainder on public/private markers. Text with no markers
// becomes a single public segment.
func ParseReferee(raw string) RefereeResult {
	var result RefereeResult

	raw, result.Kick = extractKick(raw)
	raw, result.VoteStart = extractVoteStart(raw)
	raw, result.Next = extractNext(raw)
	result.Segments = splitSegments(raw)

	return result
}

// ParsePlayer extracts a trailing internal-state block, a leading whisper
// marker, and an inline vote from one player response.
func ParsePlayer(raw string) PlayerResult {
	var result PlayerResult

	if m := trailingState.FindStringSubmatchIndex(raw); m != nil {
		result.Inner = strings.TrimSpace(raw[m[2]:m[3]])
		raw = raw[:m[0]]
	}

	if m := leadingPrivate.FindStringSubmatchIndex(raw); m != nil {
		result.Recipient = strings.TrimSpace(raw[m[2]:m[3]])
		raw = raw[m[1]:]
	}

	if m := inlineVoteRe.FindStringSubmatch(raw); m != nil {
		result.Vote = strings.TrimSpace(m[1])
		raw = inlineVoteRe.ReplaceAllString(raw, "")
	}

	result.Content = strings.TrimSpace(raw)
	return result
}

// Resolve maps a raw target token onto a roster member. Fallback order:
// exact id, case-insensitive display name, case-insensitive nickname.
func Resolve(token string, roster []domain.Participant) (domain.Participant, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Participant{}, false
	}

	for _, p := range roster {
		if p.ID == token {
			return p, true
		}
	}
	for _, p := range roster {
		if strings.EqualFold(p.Name, token) {
			return p, true
		}
	}
	for _, p := range roster {
		if p.Nickname != "" && strings.EqualFold(p.Nickname, token) {
			return p, true
		}
	}
	return domain.Participant{}, false
}

func extractKick(raw string) (string, *KickDirective) {
	m := kickRe.FindStringSubmatch(raw)
	if m == nil {
		return raw, nil
	}
	kick := &KickDirective{
		RawTarget: strings.TrimSpace(m[1]),
		Reason:    strings.TrimSpace(m[2]),
	}
	return kickRe.ReplaceAllString(raw, ""), kick
}

func extractVoteStart(raw string) (string, []string) {
	m := voteStartRe.FindStringSubmatch(raw)
	if m == nil {
		return raw, nil
	}
	candidates := splitList(m[1])
	return voteStartRe.ReplaceAllString(raw, ""), candidates
}

func extractNext(raw string) (string, NextSpeakers) {
	m := nextRe.FindStringSubmatch(raw)
	if m == nil {
		return raw, NextSpeakers{Kind: NextUnspecified}
	}
	remainder := nextRe.ReplaceAllString(raw, "")

	payload := strings.TrimSpace(m[1])
	switch {
	case payload == "":
		return remainder, NextSpeakers{Kind: NextUnspecified}
	case strings.EqualFold(payload, "ALL"):
		return remainder, NextSpeakers{Kind: NextAll}
	case strings.EqualFold(payload, "NONE"):
		return remainder, NextSpeakers{Kind: NextNone}
	default:
		return remainder, NextSpeakers{Kind: NextSome, IDs: splitList(payload)}
	}
}

// splitSegments cuts the remaining text on public/private markers. Text
// before the first marker (or the whole remainder when no marker exists)
// is public.
func splitSegments(raw string) []Segment {
	marks := segmentRe.FindAllStringSubmatchIndex(raw, -1)

	var segments []Segment
	appendSegment := func(recipient, content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		segments = append(segments, Segment{Recipient: recipient, Content: content})
	}

	if len(marks) == 0 {
		appendSegment("", raw)
		return segments
	}

	appendSegment("", raw[:marks[0][0]])

	for i, m := range marks {
		label := raw[m[2]:m[3]]
		end := len(raw)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		content := raw[m[1]:end]

		recipient := ""
		if rest, ok := strings.CutPrefix(label, "PRIVATE:"); ok {
			recipient = strings.TrimSpace(rest)
		}
		appendSegment(recipient, content)
	}
	return segments
}

func splitList(payload string) []string {
	parts := strings.Split(payload, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
