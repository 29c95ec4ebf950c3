// Package destination models the attachable output targets (Telegram,
// Slack) a session's updates can be pushed to, including the compound
// Telegram chat/topic identifier.
package destination

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the tagged variant discriminator for a Destination. Modeled the
// same way internal/session/state.go's Activity enum is in the teacher:
// an int enum plus string maps driving JSON (de)serialization.
type Kind int

const (
	KindTelegram Kind = iota
	KindSlack
)

var kindNames = map[Kind]string{
	KindTelegram: "telegram",
	KindSlack:    "slack",
}

var kindFromName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := kindFromName[name]
	if !ok {
		return fmt.Errorf("destination: unknown kind %q", name)
	}
	*k = v
	return nil
}

// Destination identifies a single output target. For KindTelegram,
// Identifier is the compound form "chat_id" or "chat_id:thread_id". For
// KindSlack, Identifier is the channel id.
type Destination struct {
	Kind       Kind   `json:"kind"`
	Identifier string `json:"identifier"`
}

// Key returns a stable map/dedup key for this destination.
func (d Destination) Key() string {
	return d.Kind.String() + ":" + d.Identifier
}

// ParseTelegramIdentifier splits a compound Telegram identifier on the
// RIGHTMOST colon, since chat_id itself may carry a leading '-' but never
// an embedded colon, while thread_id (when present) is a plain non-negative
// integer. thread_id == 1 is the Telegram "General" topic and is rejected:
// callers must omit it rather than pass it explicitly.
func ParseTelegramIdentifier(identifier string) (chatID int64, threadID int, hasThread bool, err error) {
	idx := strings.LastIndex(identifier, ":")
	if idx < 0 {
		chatID, err = strconv.ParseInt(identifier, 10, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("destination: invalid chat_id %q: %w", identifier, err)
		}
		return chatID, 0, false, nil
	}
	chatPart, threadPart := identifier[:idx], identifier[idx+1:]
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("destination: invalid chat_id %q: %w", chatPart, err)
	}
	threadID, err = strconv.Atoi(threadPart)
	if err != nil {
		return 0, 0, false, fmt.Errorf("destination: invalid thread_id %q: %w", threadPart, err)
	}
	if threadID == 1 {
		return 0, 0, false, fmt.Errorf("destination: thread_id 1 is the General topic, omit it instead")
	}
	return chatID, threadID, true, nil
}

// FormatTelegramIdentifier is the inverse of ParseTelegramIdentifier.
func FormatTelegramIdentifier(chatID int64, threadID int, hasThread bool) string {
	if !hasThread {
		return strconv.FormatInt(chatID, 10)
	}
	return fmt.Sprintf("%d:%d", chatID, threadID)
}
