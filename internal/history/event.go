// Package history records which layout slot the user picked for a window and
// suggests it again later. Selections are kept in an append-only JSON Lines
// log; lookups go through an in-memory index rebuilt from that log.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// hashLen is the number of hex characters kept from the SHA-256 digest.
const hashLen = 16

// Event is one durable layout selection.
type Event struct {
	Timestamp int64  `json:"ts"`
	ClassHash string `json:"wmClassHash"`
	TitleHash string `json:"titleHash"`
	LayoutID  string `json:"layoutId"`
}

// Hash returns the truncated SHA-256 digest used for window classes and titles.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLen]
}

func titleKey(classHash, titleHash string) string {
	return classHash + ":" + titleHash
}

func (ev Event) titleKey() string {
	return titleKey(ev.ClassHash, ev.TitleHash)
}

func (ev Event) validate() error {
	switch {
	case ev.ClassHash == "":
		return errors.New("missing wmClassHash")
	case ev.LayoutID == "":
		return errors.New("missing layoutId")
	}
	return nil
}

func decodeEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, err
	}
	if err := ev.validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func encodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return append(data, '\n'), nil
}
