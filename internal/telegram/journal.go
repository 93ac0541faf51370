package telegram

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMessages = []byte("messages")
	bucketChats    = []byte("chats")
)

// Journal records every message the bot receives, keyed by chat and
// message id. The Bot API has no history endpoint, so History and Dialogs
// are answered from here.
type Journal struct {
	db *bolt.DB
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketChats)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func idKey(id int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// Record stores the message and remembers its chat.
func (j *Journal) Record(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	chat, err := json.Marshal(msg.Chat)
	if err != nil {
		return fmt.Errorf("marshal chat: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		perChat, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(idKey(msg.Chat.ID))
		if err != nil {
			return err
		}
		if err := perChat.Put(idKey(msg.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketChats).Put(idKey(msg.Chat.ID), chat)
	})
}

// RememberChat stores chat metadata without a message.
func (j *Journal) RememberChat(chat Chat) error {
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("marshal chat: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChats).Put(idKey(chat.ID), data)
	})
}

// History returns up to limit messages of a chat, newest first.
func (j *Journal) History(chatID int64, limit int) ([]Message, error) {
	var out []Message
	err := j.db.View(func(tx *bolt.Tx) error {
		perChat := tx.Bucket(bucketMessages).Bucket(idKey(chatID))
		if perChat == nil {
			return nil
		}
		c := perChat.Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(out) < limit); k, v = c.Prev() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return fmt.Errorf("decode message %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, msg)
		}
		return nil
	})
	return out, err
}

// Chats returns every chat the journal has seen.
func (j *Journal) Chats() ([]Chat, error) {
	var out []Chat
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChats).ForEach(func(_, v []byte) error {
			var c Chat
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}
