package intent

import (
	"context"
	"encoding/json"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

func (d *Dispatcher) chatCreateGroup(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p CreateGroupParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Chats.CreateGroup(ctx, actor, p.Name, p.Members, p.Privacy)
}

func (d *Dispatcher) chatDirect(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p UserParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Chats.GetOrCreateDirect(ctx, actor, p.UserID)
}

func (d *Dispatcher) chatGet(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p ChatParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Chats.GetChat(ctx, p.ChatID, actor)
}

func (d *Dispatcher) chatList(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p PageParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	chats, err := d.core.Chats.ListChats(ctx, actor, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"chats": chats, "count": len(chats)}, nil
}

func (d *Dispatcher) chatAddMember(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p MemberParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Chats.AddMember(ctx, p.ChatID, actor, p.UserID)
}

func (d *Dispatcher) chatRemoveMember(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p MemberParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		p.UserID = actor
	}
	if err := d.core.Chats.RemoveMember(ctx, p.ChatID, actor, p.UserID); err != nil {
		return nil, err
	}
	return map[string]bool{"removed": true}, nil
}

func (d *Dispatcher) chatSetAdmin(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p SetAdminParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := d.core.Chats.SetAdmin(ctx, p.ChatID, actor, p.UserID, p.Admin); err != nil {
		return nil, err
	}
	return d.core.Chats.GetChat(ctx, p.ChatID, actor)
}

func (d *Dispatcher) chatBlock(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p UserParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := d.core.Chats.Block(ctx, actor, p.UserID); err != nil {
		return nil, err
	}
	return map[string]bool{"blocked": true}, nil
}

func (d *Dispatcher) chatUnblock(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p UserParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := d.core.Chats.Unblock(ctx, actor, p.UserID); err != nil {
		return nil, err
	}
	return map[string]bool{"blocked": false}, nil
}

func (d *Dispatcher) messageSend(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p SendParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Messages.Send(ctx, service.SendRequest{
		ChatID:    p.ChatID,
		SenderID:  actor,
		Content:   p.Content.Content(),
		ReplyToID: p.ReplyToID,
		ClientID:  p.ClientID,
	})
}

func (d *Dispatcher) messageSendDirect(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p SendDirectParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Messages.SendDirect(ctx, actor, p.To, p.Content.Content(), p.ClientID)
}

func (d *Dispatcher) messageMarkRead(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p MarkReadParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Messages.MarkRead(ctx, p.ChatID, actor, p.UpToID)
}

func (d *Dispatcher) messageReact(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p ReactParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Messages.React(ctx, p.MessageID, actor, p.Emoji)
}

func (d *Dispatcher) messageUnreact(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p ReactParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Messages.Unreact(ctx, p.MessageID, actor, p.Emoji)
}

func (d *Dispatcher) messageSoftDelete(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p MessageParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := d.core.Messages.SoftDelete(ctx, p.MessageID, actor); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

func (d *Dispatcher) messageHardDelete(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p MessageParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := d.core.Messages.HardDelete(ctx, p.MessageID, actor); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

func (d *Dispatcher) messageEdit(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p EditParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Messages.Edit(ctx, p.MessageID, actor, p.Text)
}

func (d *Dispatcher) messageList(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p ListMessagesParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	messages, err := d.core.Messages.List(ctx, service.ListRequest{
		ChatID:   p.ChatID,
		UserID:   actor,
		BeforeID: p.BeforeID,
		Limit:    p.Limit,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"messages": messages, "count": len(messages)}, nil
}

func (d *Dispatcher) callStart(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p StartCallParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Calls.StartCall(ctx, service.StartCallRequest{
		InitiatorID: actor,
		Callees:     p.Callees,
		Kind:        p.Kind,
		ChatID:      p.ChatID,
	})
}

func (d *Dispatcher) callAnswer(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p CallParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Calls.Answer(ctx, p.CallID, actor)
}

func (d *Dispatcher) callDecline(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p CallParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Calls.Decline(ctx, p.CallID, actor)
}

func (d *Dispatcher) callLeave(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p CallParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Calls.Leave(ctx, p.CallID, actor)
}

func (d *Dispatcher) callAddParticipant(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p AddCallParticipantParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Calls.AddParticipant(ctx, p.CallID, actor, p.UserID)
}

func (d *Dispatcher) callGet(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p CallParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return d.core.Calls.GetCall(ctx, p.CallID, actor)
}

func (d *Dispatcher) callList(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p PageParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	calls, err := d.core.Calls.ListCalls(ctx, actor, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"calls": calls, "count": len(calls)}, nil
}

func (d *Dispatcher) callMissed(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p PageParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	calls, err := d.core.Calls.MissedCallsFor(ctx, actor, p.Limit)
	if err != nil {
		return nil, err
	}
	total, err := d.core.Calls.CountMissedCalls(ctx, actor)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"calls": calls, "count": total}, nil
}

func (d *Dispatcher) notificationList(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p ListNotificationsParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	list, err := d.core.Notifications.List(ctx, actor, p.UnreadOnly, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	unread, err := d.core.Notifications.UnreadCount(ctx, actor)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"notifications": list, "unread": unread}, nil
}

func (d *Dispatcher) notificationMarkRead(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p NotificationParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := d.core.Notifications.MarkRead(ctx, p.NotificationID, actor); err != nil {
		return nil, err
	}
	return map[string]bool{"read": true}, nil
}

func (d *Dispatcher) notificationMarkAllRead(ctx context.Context, actor string, _ json.RawMessage) (interface{}, error) {
	n, err := d.core.Notifications.MarkAllRead(ctx, actor)
	if err != nil {
		return nil, err
	}
	return map[string]int64{"marked": n}, nil
}

func (d *Dispatcher) notificationDismiss(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p NotificationParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := d.core.Notifications.Dismiss(ctx, p.NotificationID, actor); err != nil {
		return nil, err
	}
	return map[string]bool{"dismissed": true}, nil
}

func (d *Dispatcher) notificationFriendRequest(ctx context.Context, actor string, raw json.RawMessage) (interface{}, error) {
	var p UserParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	ok, err := d.core.Registry.CanMessage(ctx, actor, p.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("user is blocked")
	}
	return d.core.Notifications.FriendRequest(ctx, actor, p.UserID)
}
