package domain

import "time"

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageEmoji  MessageKind = "emoji"
	MessageSystem MessageKind = "system"
)

const MaxMessageLength = 500

type Message struct {
	Id        string      `json:"id"`
	RoomId    string      `json:"roomId"`
	User      User        `json:"user"`
	Text      string      `json:"text"`
	Type      MessageKind `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}
