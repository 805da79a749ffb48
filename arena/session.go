package arena

import (
	"context"
	"errors"

	"github.com/topfreegames/pitaya/v2"
	"github.com/topfreegames/pitaya/v2/constants"
)

// groupService is the part of pitaya.Pitaya the room talks to.
type groupService interface {
	GroupCreate(ctx context.Context, groupName string) error
	GroupDelete(ctx context.Context, groupName string) error
	GroupAddMember(ctx context.Context, groupName, uid string) error
	GroupRemoveMember(ctx context.Context, groupName, uid string) error
	GroupBroadcast(ctx context.Context, frontendType, groupName, route string, v interface{}) error
}

type identity interface {
	UID(ctx context.Context) string
	// Bind ties the session to user and runs onClose when the session goes away.
	Bind(ctx context.Context, user string, onClose func()) error
}

type sessionIdentity struct {
	app pitaya.Pitaya
}

func (s sessionIdentity) UID(ctx context.Context) string {
	if sess := s.app.GetSessionFromCtx(ctx); sess != nil {
		return sess.UID()
	}
	return ""
}

func (s sessionIdentity) Bind(ctx context.Context, user string, onClose func()) error {
	sess := s.app.GetSessionFromCtx(ctx)
	if sess == nil {
		return errors.New("no session")
	}
	if sess.UID() == "" {
		if err := sess.Bind(ctx, user); err != nil && !errors.Is(err, constants.ErrSessionAlreadyBound) {
			return err
		}
	} else if sess.UID() != user {
		return errRebind
	}
	return sess.OnClose(onClose)
}
