// Package update defines the normalized inbound event consumed by the dispatcher.
package update

import (
	"fmt"
	"strconv"
)

// Kind identifies the payload variant carried by an Update.
type Kind string

const (
	KindMessage     Kind = "message"
	KindCallback    Kind = "callback"
	KindInlineQuery Kind = "inline_query"
	KindChannelPost Kind = "channel_post"
	KindOther       Kind = "other"
)

// Payload is the typed body of an update. Implementations are plain values.
type Payload interface {
	Kind() Kind
}

// Message is a text message sent in a chat.
type Message struct {
	ID   int
	Text string
}

func (Message) Kind() Kind { return KindMessage }

// Callback is an inline keyboard button press.
type Callback struct {
	ID   string
	Data string
}

func (Callback) Kind() Kind { return KindCallback }

// InlineQuery is an inline-mode query. It has no chat.
type InlineQuery struct {
	ID    string
	Query string
}

func (InlineQuery) Kind() Kind { return KindInlineQuery }

// ChannelPost is a post in a channel. It has no sender.
type ChannelPost struct {
	ID   int
	Text string
}

func (ChannelPost) Kind() Kind { return KindChannelPost }

// Scope identifies one conversation and partitions session and rate-limit state.
type Scope struct {
	ChatID int64
	UserID int64
}

// String renders the scope as "<chat>-<user>".
func (s Scope) String() string {
	return strconv.FormatInt(s.ChatID, 10) + "-" + strconv.FormatInt(s.UserID, 10)
}

// ParseScope is the inverse of Scope.String.
func ParseScope(raw string) (Scope, error) {
	// chat ids may be negative, so split on the last separator that follows a digit
	for i := len(raw) - 1; i > 0; i-- {
		if raw[i] != '-' || raw[i-1] == '-' {
			continue
		}
		chatID, err := strconv.ParseInt(raw[:i], 10, 64)
		if err != nil {
			continue
		}
		userID, err := strconv.ParseInt(raw[i+1:], 10, 64)
		if err != nil {
			continue
		}
		return Scope{ChatID: chatID, UserID: userID}, nil
	}

	return Scope{}, fmt.Errorf("invalid scope %q", raw)
}

// Update is one inbound event. It is immutable once constructed.
type Update struct {
	ID       int64
	ChatID   int64
	UserID   int64
	Username string
	Payload  Payload
	// Language is the sender's IETF language tag when the platform reports one.
	Language string
}

// New builds an Update, filling the missing half of the scope the same way for every payload:
// inline queries are scoped to the sender, channel posts to the channel.
func New(id, chatID, userID int64, username string, payload Payload) Update {
	switch {
	case chatID == 0 && userID != 0:
		chatID = userID
	case userID == 0 && chatID != 0:
		userID = chatID
	}

	return Update{
		ID:       id,
		ChatID:   chatID,
		UserID:   userID,
		Username: username,
		Payload:  payload,
	}
}

// Scope returns the conversation key of the update.
func (u Update) Scope() Scope {
	return Scope{ChatID: u.ChatID, UserID: u.UserID}
}

// Kind returns the payload kind, or KindOther when there is no payload.
func (u Update) Kind() Kind {
	if u.Payload == nil {
		return KindOther
	}
	return u.Payload.Kind()
}

// Text returns the message, channel post or inline query text, or the callback data.
func (u Update) Text() string {
	switch p := u.Payload.(type) {
	case Message:
		return p.Text
	case ChannelPost:
		return p.Text
	case InlineQuery:
		return p.Query
	case Callback:
		return p.Data
	default:
		return ""
	}
}
