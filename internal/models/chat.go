package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrValidation marks a rejected chat or message payload.
var ErrValidation = errors.New("validation failed")

// Chat is a direct (two-member) or group conversation.
type Chat struct {
	ID           int       `db:"id" json:"id"`
	IsGroup      bool      `db:"is_group" json:"isGroup"`
	Name         string    `db:"name" json:"name,omitempty"`
	Members      []int     `db:"-" json:"members"`
	Admins       []int     `db:"-" json:"admins"`
	GroupPicture string    `db:"group_picture" json:"groupPicture,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// HasMember reports whether userID belongs to the chat.
func (c Chat) HasMember(userID int) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// PairKey returns the order-independent key of a direct chat's member pair.
// It reports false for group chats and for direct chats that do not have exactly two members.
func (c Chat) PairKey() (string, bool) {
	if c.IsGroup || len(c.Members) != 2 {
		return "", false
	}
	a, b := c.Members[0], c.Members[1]
	if a > b {
		a, b = b, a
	}
	return strconv.Itoa(a) + "-" + strconv.Itoa(b), true
}

// NewChat is the create-chat request, shared by the HTTP layer and the stores.
type NewChat struct {
	IsGroup      bool   `json:"isGroup"`
	Name         string `json:"name"`
	Members      []int  `json:"members"`
	Admins       []int  `json:"admins"`
	GroupPicture string `json:"groupPicture"`
}

// Normalize validates the request and returns a copy with deduplicated members
// and admins restricted to members. Group admins default to the first member.
func (n NewChat) Normalize() (NewChat, error) {
	members := dedupeIDs(n.Members)
	for _, id := range members {
		if id <= 0 {
			return NewChat{}, fmt.Errorf("%w: invalid member id %d", ErrValidation, id)
		}
	}

	out := NewChat{IsGroup: n.IsGroup, Members: members, GroupPicture: n.GroupPicture}
	if !n.IsGroup {
		if len(members) != 2 {
			return NewChat{}, fmt.Errorf("%w: direct chat requires exactly 2 members", ErrValidation)
		}
		out.Admins = []int{}
		return out, nil
	}

	name := strings.TrimSpace(n.Name)
	if name == "" || len(members) < 2 {
		return NewChat{}, fmt.Errorf("%w: group requires a name and at least 2 members", ErrValidation)
	}
	out.Name = name

	memberSet := make(map[int]struct{}, len(members))
	for _, id := range members {
		memberSet[id] = struct{}{}
	}
	admins := make([]int, 0, len(n.Admins))
	for _, id := range dedupeIDs(n.Admins) {
		if _, ok := memberSet[id]; ok {
			admins = append(admins, id)
		}
	}
	if len(admins) == 0 {
		admins = []int{members[0]}
	}
	out.Admins = admins
	return out, nil
}

func dedupeIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// LastMessage is the preview attached to a chat summary.
type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  int       `json:"senderId"`
}

// ChatSummary is a chat annotated for one requesting user.
type ChatSummary struct {
	Chat
	MemberCount int          `json:"memberCount"`
	LastMessage *LastMessage `json:"lastMessage"`
	UnreadCount int          `json:"unreadCount"`
}
