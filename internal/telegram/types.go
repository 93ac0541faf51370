// Package telegram is the chat transport adapter: a Bot API client built on
// go-telegram/bot with rate pacing, a long-poll listener, folder definitions
// and a local journal of received messages that backs chat history lookups.
package telegram

import (
	"strings"

	"github.com/go-telegram/bot/models"
)

// Chat types as reported by the Bot API.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Name returns the title for groups and channels, the full name otherwise.
func (c Chat) Name() string {
	if c.Title != "" {
		return c.Title
	}
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Username
	}
	return name
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Message struct {
	ID           int64       `json:"message_id"`
	From         *User       `json:"from,omitempty"`
	SenderChat   *Chat       `json:"sender_chat,omitempty"`
	Chat         Chat        `json:"chat"`
	Date         int64       `json:"date"`
	MediaGroupID string      `json:"media_group_id,omitempty"`
	Text         string      `json:"text,omitempty"`
	Caption      string      `json:"caption,omitempty"`
	Document     *Document   `json:"document,omitempty"`
	Photo        []PhotoSize `json:"photo,omitempty"`
	Video        *Document   `json:"video,omitempty"`
	Audio        *Document   `json:"audio,omitempty"`
	Voice        *Document   `json:"voice,omitempty"`
	Animation    *Document   `json:"animation,omitempty"`
}

// HasMedia reports whether the message carries a file that accepts a caption.
func (m Message) HasMedia() bool {
	return m.Document != nil || len(m.Photo) > 0 || m.Video != nil ||
		m.Audio != nil || m.Voice != nil || m.Animation != nil
}

// Content is the human-readable payload: the text, else the caption.
func (m Message) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// SenderID is the user id of the author, or the sender chat for anonymous
// and channel posts.
func (m Message) SenderID() int64 {
	if m.From != nil {
		return m.From.ID
	}
	if m.SenderChat != nil {
		return m.SenderChat.ID
	}
	return 0
}

func fromUser(u *models.User) User {
	if u == nil {
		return User{}
	}
	return User{ID: u.ID, IsBot: u.IsBot, FirstName: u.FirstName, LastName: u.LastName, Username: u.Username}
}

func fromChat(c models.Chat) Chat {
	return Chat{
		ID:        c.ID,
		Type:      string(c.Type),
		Title:     c.Title,
		Username:  c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

func document(fileID, name, mime string, size int64) *Document {
	return &Document{FileID: fileID, FileName: name, MimeType: mime, FileSize: size}
}

// fromMessage copies the fields the bot uses out of a Bot API message.
func fromMessage(m *models.Message) Message {
	msg := Message{
		ID:           int64(m.ID),
		Chat:         fromChat(m.Chat),
		Date:         int64(m.Date),
		MediaGroupID: m.MediaGroupID,
		Text:         m.Text,
		Caption:      m.Caption,
	}
	if m.From != nil {
		u := fromUser(m.From)
		msg.From = &u
	}
	if m.SenderChat != nil {
		c := fromChat(*m.SenderChat)
		msg.SenderChat = &c
	}
	if d := m.Document; d != nil {
		msg.Document = document(d.FileID, d.FileName, d.MimeType, d.FileSize)
	}
	for _, p := range m.Photo {
		msg.Photo = append(msg.Photo, PhotoSize{FileID: p.FileID, Width: p.Width, Height: p.Height})
	}
	if v := m.Video; v != nil {
		msg.Video = document(v.FileID, v.FileName, v.MimeType, v.FileSize)
	}
	if a := m.Audio; a != nil {
		msg.Audio = document(a.FileID, a.FileName, a.MimeType, a.FileSize)
	}
	if v := m.Voice; v != nil {
		msg.Voice = document(v.FileID, "", v.MimeType, v.FileSize)
	}
	if a := m.Animation; a != nil {
		msg.Animation = document(a.FileID, a.FileName, a.MimeType, a.FileSize)
	}
	return msg
}

// incoming returns the new message carried by an update, if any. Edits are
// not treated as new messages.
func incoming(u *models.Update) *models.Message {
	if u.Message != nil {
		return u.Message
	}
	return u.ChannelPost
}
