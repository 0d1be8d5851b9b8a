package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed hashing. The version suffix enables
// future algorithm migration.
const (
	DomainEvent   = "timeloom/event/v1"
	DomainHistory = "timeloom/history/v1"
)

// hashWithDomain computes SHA-256 with domain separation. The null byte
// separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventHash computes the content-addressed identity of a wire event. Stable
// across restarts and replays given the same event.
func EventHash(w Event) (string, error) {
	canonical, err := MarshalCanonical(eventCanonicalMap(w))
	if err != nil {
		return "", fmt.Errorf("wire: event hash: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// HistoryHash computes the content-addressed identity of a wire history.
// The frontier event enters through its own EventHash, so the two domains
// chain. Identical histories hash identically regardless of how they were
// reached (append sequence or reconstruction).
func HistoryHash(w History) (string, error) {
	lastHash, err := EventHash(w.LastEvent)
	if err != nil {
		return "", fmt.Errorf("wire: history hash: %w", err)
	}
	prev := make(map[string]any, len(w.PreviousTransitions))
	for _, t := range w.PreviousTransitions {
		prev[fmt.Sprintf("%d", t.When)] = t.State
	}
	obj := map[string]any{
		"previousTransitions": prev,
		"lastEventHash":       lastHash,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("wire: history hash: %w", err)
	}
	return hashWithDomain(DomainHistory, canonical), nil
}

func eventCanonicalMap(w Event) map[string]any {
	deps := make(map[string]any, len(w.Dependencies))
	for obj, t := range w.Dependencies {
		deps[obj] = t
	}
	return map[string]any{
		"id": map[string]any{
			"object": string(w.ID.Object),
			"when":   int64(w.ID.When),
		},
		"state":        w.State,
		"dependencies": deps,
	}
}
