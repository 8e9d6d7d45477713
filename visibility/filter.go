// Package visibility projects the shared message log into what one specific
// participant may see. The projection is pure and deterministic: identical
// inputs always yield identical output, with no hidden state.
package visibility

import (
	"conclave/domain"

	"github.com/samber/lo"
)

// Project returns the redacted log seen by the viewer.
//
// Rules, applied per message:
//   - the viewer's own messages pass through unchanged;
//   - an addressed message is visible to the recipient, the author, and any
//     participant whose alliance tag equals the recipient field; everyone
//     else drops it entirely;
//   - a broadcast's hidden internal-state block is replaced with a redaction
//     placeholder unless the viewer shares the author's alliance;
//   - messages left with no text and no media after redaction are dropped.
func Project(viewer domain.Participant, log []domain.Message, roster []domain.Participant) []domain.Message {
	alliances := allianceIndex(roster)

	return lo.FilterMap(log, func(msg domain.Message, _ int) (domain.Message, bool) {
		if msg.SenderID == viewer.ID {
			return msg, true
		}

		if !msg.Broadcast() {
			visible := msg.Recipient == viewer.ID ||
				(viewer.Alliance != "" && msg.Recipient == viewer.Alliance)
			if !visible {
				return domain.Message{}, false
			}
			return msg, true
		}

		if msg.Inner != "" && !sameAlliance(viewer, msg.SenderID, alliances) {
			msg.Inner = domain.RedactedState
		}
		if msg.Empty() {
			return domain.Message{}, false
		}
		return msg, true
	})
}

// Omniscient returns the unfiltered log for the referee or narrator,
// together with a sender-to-alliance map so the speaker annotations can be
// rendered into the prompt ("god view").
func Omniscient(log []domain.Message, roster []domain.Participant) ([]domain.Message, map[string]string) {
	out := make([]domain.Message, len(log))
	copy(out, log)
	return out, allianceIndex(roster)
}

func allianceIndex(roster []domain.Participant) map[string]string {
	index := make(map[string]string, len(roster))
	for _, p := range roster {
		if p.Alliance != "" {
			index[p.ID] = p.Alliance
		}
	}
	return index
}

func sameAlliance(viewer domain.Participant, authorID string, alliances map[string]string) bool {
	if viewer.Alliance == "" {
		return false
	}
	return alliances[authorID] == viewer.Alliance
}
