package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"

	"chat-engine/internal/observability"
	"chat-engine/internal/presence"
)

var (
	errNotIdentified    = errors.New("identify first")
	errIdentityMismatch = errors.New("user does not match authenticated identity")
	errNotMember        = errors.New("not a member of chat")
	errMembershipCheck  = errors.New("membership check failed")
	errWrongChat        = errors.New("message belongs to another chat")
	errInvalidMessage   = errors.New("message must be persisted and have content")
	errAlreadyBound     = errors.New("session already identified as another user")
)

// MembershipChecker answers whether a user belongs to a chat.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID int, userID int) (bool, error)
}

// Router applies inbound session events to the presence registry, the typing
// state and the hub. Each session's events arrive from its own read pump.
type Router struct {
	hub          *Hub
	presence     *presence.Registry
	typing       *presence.TypingState
	members      MembershipChecker
	storeTimeout time.Duration
}

// NewRouter builds a Router. A nil members checker trusts joinRoom chat ids.
func NewRouter(hub *Hub, registry *presence.Registry, typing *presence.TypingState, members MembershipChecker, storeTimeout time.Duration) *Router {
	return &Router{
		hub:          hub,
		presence:     registry,
		typing:       typing,
		members:      members,
		storeTimeout: storeTimeout,
	}
}

// Connect registers a fresh session in the Unauthenticated state.
func (r *Router) Connect(s *Session) {
	s.state = stateUnauthenticated
	r.hub.Register(s)
	r.presence.RegisterSession(s.id)
}

// Disconnect leaves every room and releases presence exactly once per session.
func (r *Router) Disconnect(s *Session) {
	s.finalizeOnce.Do(func() {
		s.state = stateTerminated
		r.hub.LeaveAll(s.id)
		userID, offline := r.presence.UnregisterSession(s.id)
		if offline {
			r.typing.ClearUser(userID)
		}
		r.hub.Unregister(s.id)
		s.Close()
	})
}

// Handle decodes and applies one inbound frame. Failures are reported to the
// session as an error event and leave state untouched.
func (r *Router) Handle(ctx context.Context, s *Session, raw []byte) {
	if s.state == stateTerminated {
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		r.reject(s, "", errors.New("malformed event"))
		return
	}
	observability.IncWSEvent("in", env.Event)

	var err error
	switch env.Event {
	case EventIdentify:
		err = r.identify(s, env.Data)
	case EventJoinRoom:
		err = r.joinRoom(ctx, s, env.Data)
	case EventLeaveRoom:
		err = r.leaveRoom(s, env.Data)
	case EventSendMessage:
		err = r.sendMessage(s, env.Data)
	case EventTyping:
		err = r.setTyping(s, env.Data)
	default:
		err = fmt.Errorf("unknown event %q", env.Event)
	}
	if err != nil {
		r.reject(s, env.Event, err)
	}
}

func (r *Router) identify(s *Session, data json.RawMessage) error {
	var p IdentifyPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if s.pinnedUser != 0 && p.UserID != s.pinnedUser {
		return errIdentityMismatch
	}
	// Rooms were joined under the bound identity, so it cannot change.
	if s.state == stateIdentified && p.UserID != s.userID {
		return errAlreadyBound
	}
	if err := r.presence.BindUser(s.id, p.UserID); err != nil {
		return err
	}
	s.userID = p.UserID
	s.state = stateIdentified
	return nil
}

// joinRoom checks membership without holding any hub or presence lock.
func (r *Router) joinRoom(ctx context.Context, s *Session, data json.RawMessage) error {
	if s.state != stateIdentified {
		return errNotIdentified
	}
	var p RoomPayload
	if err := decode(data, &p); err != nil {
		return err
	}

	if r.members != nil {
		checkCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		ok, err := r.members.IsMember(checkCtx, p.ChatID, s.userID)
		cancel()
		if err != nil {
			log.Printf("ws membership check failed session_id=%s chat_id=%d: %v", s.id, p.ChatID, err)
			return errMembershipCheck
		}
		if !ok {
			return errNotMember
		}
	}
	return r.hub.Join(s.id, p.ChatID)
}

func (r *Router) leaveRoom(s *Session, data json.RawMessage) error {
	if s.state != stateIdentified {
		return errNotIdentified
	}
	var p RoomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	r.hub.Leave(s.id, p.ChatID)
	return nil
}

// sendMessage relays an already persisted message to the whole room, sender included.
func (r *Router) sendMessage(s *Session, data json.RawMessage) error {
	if s.state != stateIdentified {
		return errNotIdentified
	}
	var p SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.Message.ID <= 0 || strings.TrimSpace(p.Message.Content) == "" {
		return errInvalidMessage
	}
	if p.Message.ChatID != 0 && p.Message.ChatID != p.ChatID {
		return errWrongChat
	}
	if p.Message.SenderID != 0 && p.Message.SenderID != s.userID {
		return errIdentityMismatch
	}
	r.hub.Broadcast(p.ChatID, EventMessage, p.Message, "")
	return nil
}

func (r *Router) setTyping(s *Session, data json.RawMessage) error {
	if s.state != stateIdentified {
		return errNotIdentified
	}
	var p TypingPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.UserID != 0 && p.UserID != s.userID {
		return errIdentityMismatch
	}
	r.typing.Set(p.ChatID, s.userID, *p.IsTyping, s.id)
	return nil
}

func (r *Router) reject(s *Session, event string, err error) {
	observability.IncWSEvent("in", "rejected")
	log.Printf("ws event rejected session_id=%s event=%s: %v", s.id, event, err)
	s.Send(EventError, ErrorPayload{Message: err.Error()})
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
