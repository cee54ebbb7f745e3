// Package onebot implements a client for the OneBot 12 HTTP action API.
// It provides the inbound event feed and the outbound message transport.
package onebot

import (
	"encoding/json"
	"strings"
)

// Event types and detail types the dispatcher cares about.
const (
	EventTypeMessage  = "message"
	DetailTypePrivate = "private"
	SegmentTypeText   = "text"
)

// SegmentData carries the payload of a message segment. Only text segments
// are interpreted; other segment types keep their payload unparsed.
type SegmentData struct {
	Text string `json:"text"`
}

// Segment is one part of a segmented message.
type Segment struct {
	Type string      `json:"type"`
	Data SegmentData `json:"data"`
}

// Message is the segmented message payload of an event. Some upstream
// implementations emit malformed payloads (non-list message fields); those
// decode to an empty message instead of failing the whole event.
type Message []Segment

// UnmarshalJSON tolerates non-list payloads by yielding an empty message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		*m = nil
		return nil
	}
	*m = segments
	return nil
}

// Event is an inbound OneBot event. Fields irrelevant to private-message
// dispatch are not modeled.
type Event struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	DetailType string  `json:"detail_type"`
	MessageID  string  `json:"message_id"`
	UserID     string  `json:"user_id"`
	Message    Message `json:"message"`
}

// IsPrivateMessage reports whether the event is a one-to-one text message
// notification.
func (e *Event) IsPrivateMessage() bool {
	return e.Type == EventTypeMessage && e.DetailType == DetailTypePrivate
}

// PlainText concatenates all text segments of the message payload in order.
// It returns an empty string when no text segments exist.
func (e *Event) PlainText() string {
	var b strings.Builder
	for _, seg := range e.Message {
		if seg.Type == SegmentTypeText {
			b.WriteString(seg.Data.Text)
		}
	}
	return b.String()
}

// OutgoingMessage is an outbound reply delivered through the send_message
// action.
type OutgoingMessage struct {
	UserID     string  `json:"user_id"`
	DetailType string  `json:"detail_type"`
	Message    Message `json:"message"`
}

// NewTextReply builds a private text reply to userID.
func NewTextReply(userID, text string) *OutgoingMessage {
	return &OutgoingMessage{
		UserID:     userID,
		DetailType: DetailTypePrivate,
		Message: Message{
			{Type: SegmentTypeText, Data: SegmentData{Text: text}},
		},
	}
}

// PlainText concatenates the text segments of the outgoing message, used for
// log previews.
func (m *OutgoingMessage) PlainText() string {
	var b strings.Builder
	for _, seg := range m.Message {
		if seg.Type == SegmentTypeText {
			b.WriteString(seg.Data.Text)
		}
	}
	return b.String()
}

// SelfInfo describes the bot account as reported by get_self_info.
type SelfInfo struct {
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name"`
	UserDisplayname string `json:"user_displayname"`
}
