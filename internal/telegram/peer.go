package telegram

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// PeerKind discriminates the Peer union.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

func (k PeerKind) String() string {
	switch k {
	case PeerUser:
		return "user"
	case PeerChat:
		return "chat"
	case PeerChannel:
		return "channel"
	}
	return fmt.Sprintf("PeerKind(%d)", int(k))
}

// Peer is a folder member as written in a dialog filter: a bare id plus
// its kind. ChatID maps it into the signed id space the Bot API uses.
type Peer struct {
	Kind PeerKind
	ID   int64
}

const channelOffset = -1000000000000

// ChatID returns userID, -chatID, or -1000000000000 - channelID.
func (p Peer) ChatID() int64 {
	switch p.Kind {
	case PeerChat:
		return -p.ID
	case PeerChannel:
		return channelOffset - p.ID
	default:
		return p.ID
	}
}

// PeerFromChatID reverses ChatID.
func PeerFromChatID(id int64) Peer {
	switch {
	case id > 0:
		return Peer{Kind: PeerUser, ID: id}
	case id < channelOffset:
		return Peer{Kind: PeerChannel, ID: channelOffset - id}
	default:
		return Peer{Kind: PeerChat, ID: -id}
	}
}

// Folder is a named set of chats, mirroring a Telegram dialog filter.
type Folder struct {
	Title string
	Peers []Peer
}

// ChatIDs returns the chat ids of every peer in order.
func (f Folder) ChatIDs() []int64 {
	ids := make([]int64, len(f.Peers))
	for i, p := range f.Peers {
		ids[i] = p.ChatID()
	}
	return ids
}

// Contains reports whether chatID belongs to the folder.
func (f Folder) Contains(chatID int64) bool {
	return slices.Contains(f.ChatIDs(), chatID)
}

// Folders is the set of folders loaded from disk.
type Folders []Folder

// Find returns the folder with the given title.
func (fs Folders) Find(title string) (Folder, bool) {
	for _, f := range fs {
		if f.Title == title {
			return f, true
		}
	}
	return Folder{}, false
}

type folderFile struct {
	Folders []struct {
		Title        string     `yaml:"title"`
		IncludePeers []peerYAML `yaml:"include_peers"`
	} `yaml:"folders"`
}

type peerYAML struct {
	ChannelID *int64 `yaml:"channel_id"`
	ChatID    *int64 `yaml:"chat_id"`
	UserID    *int64 `yaml:"user_id"`
}

func (p peerYAML) peer() (Peer, error) {
	switch {
	case p.ChannelID != nil && p.ChatID == nil && p.UserID == nil:
		return Peer{Kind: PeerChannel, ID: *p.ChannelID}, nil
	case p.ChatID != nil && p.ChannelID == nil && p.UserID == nil:
		return Peer{Kind: PeerChat, ID: *p.ChatID}, nil
	case p.UserID != nil && p.ChannelID == nil && p.ChatID == nil:
		return Peer{Kind: PeerUser, ID: *p.UserID}, nil
	}
	return Peer{}, fmt.Errorf("peer must set exactly one of channel_id, chat_id, user_id")
}

// LoadFolders reads folder definitions from a YAML file.
func LoadFolders(path string) (Folders, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read folders: %w", err)
	}
	return ParseFolders(data)
}

// ParseFolders decodes folder definitions.
func ParseFolders(data []byte) (Folders, error) {
	var raw folderFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse folders: %w", err)
	}
	out := make(Folders, 0, len(raw.Folders))
	for _, f := range raw.Folders {
		folder := Folder{Title: f.Title}
		for i, p := range f.IncludePeers {
			peer, err := p.peer()
			if err != nil {
				return nil, fmt.Errorf("folder %q peer %d: %w", f.Title, i, err)
			}
			folder.Peers = append(folder.Peers, peer)
		}
		out = append(out, folder)
	}
	return out, nil
}
