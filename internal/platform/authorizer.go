package platform

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/Facats/slotwatcherss/internal/reconcile"
)

// Authorizer adapts a discordgo session to reconcile.Authorizer.  A slot's
// resource is a channel, its grant is a guild role, and holder access is a
// member permission overwrite carrying SlotPermissions.
type Authorizer struct {
	S       *discordgo.Session
	GuildID string
}

var _ reconcile.Authorizer = Authorizer{}

func (a Authorizer) ResourceLabel(ctx context.Context, resourceRef string) (string, error) {
	ch, err := a.S.Channel(resourceRef, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (a Authorizer) SetResourceLabel(ctx context.Context, resourceRef, label string) error {
	_, err := a.S.ChannelEdit(resourceRef, &discordgo.ChannelEdit{Name: label}, discordgo.WithContext(ctx))
	return err
}

func (a Authorizer) AllowHolder(ctx context.Context, resourceRef, holderID string) error {
	return a.S.ChannelPermissionSet(resourceRef, holderID, discordgo.PermissionOverwriteTypeMember,
		SlotPermissions, 0, discordgo.WithContext(ctx))
}

func (a Authorizer) DisallowHolder(ctx context.Context, resourceRef, holderID string) error {
	return gone(a.S.ChannelPermissionDelete(resourceRef, holderID, discordgo.WithContext(ctx)))
}

func (a Authorizer) AssignGrant(ctx context.Context, holderID, grantRef string) error {
	return a.S.GuildMemberRoleAdd(a.GuildID, holderID, grantRef, discordgo.WithContext(ctx))
}

func (a Authorizer) RemoveGrant(ctx context.Context, holderID, grantRef string) error {
	return gone(a.S.GuildMemberRoleRemove(a.GuildID, holderID, grantRef, discordgo.WithContext(ctx)))
}

// Platform error codes meaning the member, role or overwrite no longer
// exists.
const (
	codeUnknownMember    = 10007
	codeUnknownOverwrite = 10009
	codeUnknownRole      = 10011
)

// gone maps "already removed" responses to reconcile.ErrGone.
func gone(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case codeUnknownMember, codeUnknownOverwrite, codeUnknownRole:
			return reconcile.ErrGone
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return reconcile.ErrGone
	}
	return err
}
