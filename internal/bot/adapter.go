package bot

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// FromTelebot converts a raw telegram update. It reports false for update kinds the dispatch
// core does not route, such as edits and chat member changes.
func FromTelebot(raw *telebot.Update) (update.Update, bool) {
	if raw == nil {
		return update.Update{}, false
	}
	upd, ok := convert(raw)
	if ok {
		upd.Language = language(raw)
	}
	return upd, ok
}

func convert(raw *telebot.Update) (update.Update, bool) {
	id := int64(raw.ID)

	switch {
	case raw.Message != nil:
		msg := raw.Message
		userID, username := sender(msg.Sender)
		return update.New(id, chatID(msg.Chat), userID, username, update.Message{ID: msg.ID, Text: messageText(msg)}), true

	case raw.Callback != nil:
		cb := raw.Callback
		userID, username := sender(cb.Sender)
		var chat int64
		if cb.Message != nil {
			chat = chatID(cb.Message.Chat)
		}
		// telebot prefixes data of unique buttons with a form feed
		data := strings.TrimPrefix(cb.Data, "\f")
		return update.New(id, chat, userID, username, update.Callback{ID: cb.ID, Data: data}), true

	case raw.Query != nil:
		q := raw.Query
		userID, username := sender(q.Sender)
		return update.New(id, 0, userID, username, update.InlineQuery{ID: q.ID, Query: q.Text}), true

	case raw.ChannelPost != nil:
		post := raw.ChannelPost
		return update.New(id, chatID(post.Chat), 0, "", update.ChannelPost{ID: post.ID, Text: messageText(post)}), true
	}

	return update.Update{}, false
}

func language(raw *telebot.Update) string {
	switch {
	case raw.Message != nil && raw.Message.Sender != nil:
		return raw.Message.Sender.LanguageCode
	case raw.Callback != nil && raw.Callback.Sender != nil:
		return raw.Callback.Sender.LanguageCode
	case raw.Query != nil && raw.Query.Sender != nil:
		return raw.Query.Sender.LanguageCode
	}
	return ""
}

func sender(u *telebot.User) (int64, string) {
	if u == nil {
		return 0, ""
	}
	return u.ID, u.Username
}

func chatID(c *telebot.Chat) int64 {
	if c == nil {
		return 0
	}
	return c.ID
}

func messageText(m *telebot.Message) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}
