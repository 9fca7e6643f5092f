package slackmod

import (
	"context"
	"strings"

	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/response"
	"github.com/slack-go/slack"
)

type postResult struct {
	channel   string
	timestamp string
}

// SendMessage posts text to a channel, DM or thread. The target may be an ID, a
// #channel, a @user or a bare name.
func (m *Module) SendMessage(ctx context.Context, req actions.Request) (map[string]any, error) {
	target, err := actions.RequireString(req.Params, "channel")
	if err != nil {
		return nil, err
	}
	text, err := actions.RequireString(req.Params, "text")
	if err != nil {
		return nil, err
	}
	s, err := m.session(ctx, req)
	if err != nil {
		return nil, err
	}
	channelID, err := m.resolveConversation(ctx, s, req, target)
	if err != nil {
		return nil, err
	}

	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS := actions.String(req.Params, "thread_ts"); threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}
	posted, err := response.Execute(ctx, m.Handler, "chat.postMessage", func(ctx context.Context) (postResult, error) {
		channel, ts, err := s.client.PostMessageContext(ctx, channelID, options...)
		return postResult{channel: channel, timestamp: ts}, err
	}, m.fields(s, req)...)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"channel": posted.channel,
		"ts":      posted.timestamp,
	}, nil
}

func (m *Module) GetChannelHistory(ctx context.Context, req actions.Request) (map[string]any, error) {
	target, err := actions.RequireString(req.Params, "channel")
	if err != nil {
		return nil, err
	}
	s, err := m.session(ctx, req)
	if err != nil {
		return nil, err
	}
	channelID, err := m.resolveChannel(ctx, s, req, target)
	if err != nil {
		return nil, err
	}
	limit := actions.Int(req.Params, "limit", defaultHistoryLimit, maxHistoryLimit)

	history, err := response.Execute(ctx, m.Handler, "conversations.history", func(ctx context.Context) (*slack.GetConversationHistoryResponse, error) {
		return s.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     limit,
		})
	}, m.fields(s, req)...)
	if err != nil {
		return nil, err
	}

	messages := make([]map[string]any, 0, len(history.Messages))
	for _, message := range history.Messages {
		entry := map[string]any{
			"ts":   message.Timestamp,
			"user": message.User,
			"text": message.Text,
		}
		if message.ThreadTimestamp != "" {
			entry["thread_ts"] = message.ThreadTimestamp
		}
		messages = append(messages, entry)
	}
	return map[string]any{
		"channel":  channelID,
		"messages": messages,
		"count":    len(messages),
		"has_more": history.HasMore,
	}, nil
}

func (m *Module) AddReaction(ctx context.Context, req actions.Request) (map[string]any, error) {
	target, err := actions.RequireString(req.Params, "channel")
	if err != nil {
		return nil, err
	}
	timestamp, err := actions.RequireString(req.Params, "timestamp")
	if err != nil {
		return nil, err
	}
	name, err := actions.RequireString(req.Params, "name")
	if err != nil {
		return nil, err
	}
	name = strings.Trim(name, ":")

	s, err := m.session(ctx, req)
	if err != nil {
		return nil, err
	}
	channelID, err := m.resolveChannel(ctx, s, req, target)
	if err != nil {
		return nil, err
	}
	if _, err := response.Execute(ctx, m.Handler, "reactions.add", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.client.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, timestamp))
	}, m.fields(s, req)...); err != nil {
		return nil, err
	}
	return map[string]any{
		"channel":   channelID,
		"timestamp": timestamp,
		"name":      name,
	}, nil
}
