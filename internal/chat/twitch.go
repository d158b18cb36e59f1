// Package chat delivers incoming chat messages to the dispatcher.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gempir/go-twitch-irc/v4"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.ChatSource = (*Twitch)(nil)
	_ domain.ChatSource = (*Console)(nil)
)

// ircClient is the subset of the go-twitch-irc client used here.
type ircClient interface {
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnConnect(func())
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// Twitch reads one channel's chat over IRC. Without a token it joins
// anonymously, which is enough to read.
type Twitch struct {
	client  ircClient
	channel string
	log     *logger.Logger
}

// NewTwitch creates a Twitch chat source for channel.
func NewTwitch(channel, username, token string, log *logger.Logger) *Twitch {
	var client *twitch.Client
	if username != "" && token != "" {
		if !strings.HasPrefix(token, "oauth:") {
			token = "oauth:" + token
		}
		client = twitch.NewClient(username, token)
	} else {
		client = twitch.NewAnonymousClient()
	}
	return newTwitch(client, channel, log)
}

func newTwitch(client ircClient, channel string, log *logger.Logger) *Twitch {
	return &Twitch{
		client:  client,
		channel: strings.ToLower(strings.TrimPrefix(channel, "#")),
		log:     log,
	}
}

// Run connects and forwards chat messages to out until ctx is cancelled.
func (t *Twitch) Run(ctx context.Context, out chan<- domain.ChatMessage) error {
	t.client.OnConnect(func() {
		t.log.Info("chat: connected to #%s", t.channel)
	})
	t.client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		msg := domain.ChatMessage{Author: m.User.Name, Text: m.Message, Time: m.Time}
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	})
	t.client.Join(t.channel)

	stop := context.AfterFunc(ctx, func() {
		if err := t.client.Disconnect(); err != nil {
			t.log.Debug("chat: disconnect: %v", err)
		}
	})
	defer stop()

	err := t.client.Connect()
	if ctx.Err() != nil || errors.Is(err, twitch.ErrClientDisconnected) {
		t.log.Info("chat: left #%s", t.channel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("twitch irc: %w", err)
	}
	return nil
}
