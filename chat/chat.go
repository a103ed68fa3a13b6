package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/dj-tender/commentary"
	"github.com/onnwee/dj-tender/config"
	"github.com/onnwee/dj-tender/dj"
	"github.com/onnwee/dj-tender/media"
)

// Controller is the slice of the orchestrator the chat commands drive.
type Controller interface {
	Start(ctx context.Context, guildID, channelID, userID string, seeds media.Seeds) (*dj.Session, error)
	Skip(guildID, userID string) error
	Stop(guildID string) error
}

// VoiceSettings persists per-channel voice selection.
type VoiceSettings interface {
	GuildVoice(ctx context.Context, guildID string) (string, error)
	SetGuildVoice(ctx context.Context, guildID, voice string) error
}

type Bot struct {
	client   *twitch.Client
	channels []string
	ctl      Controller
	voices   VoiceSettings
	log      *slog.Logger
}

func NewBot(cfg *config.Config, ctl Controller, voices VoiceSettings) *Bot {
	return &Bot{
		client:   twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken),
		channels: cfg.TwitchChannels,
		ctl:      ctl,
		voices:   voices,
		log:      slog.Default().With(slog.String("component", "chat")),
	}
}

// SetController attaches the orchestrator after construction; the bot is
// also the orchestrator's notifier, so one of them has to come first.
func (b *Bot) SetController(ctl Controller) { b.ctl = ctl }

// Run connects to IRC and blocks until ctx is done or the connection fails.
func (b *Bot) Run(ctx context.Context) error {
	b.client.OnConnect(func() {
		b.log.Info("twitch chat connected", slog.Any("channels", b.channels))
	})
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if reply := b.handle(ctx, msg.Channel, msg.User.Name, msg.User.Badges, msg.Message); reply != "" {
			b.client.Say(msg.Channel, reply)
		}
	})
	b.client.Join(b.channels...)

	go func() {
		<-ctx.Done()
		_ = b.client.Disconnect()
	}()
	err := b.client.Connect()
	if ctx.Err() != nil || errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}

// Notify sends msg to a joined channel.
func (b *Bot) Notify(ctx context.Context, channel, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == "" {
		return errors.New("notify: empty channel")
	}
	b.client.Say(channel, msg)
	return nil
}

// handle runs one chat line and returns the reply ("" for none).
func (b *Bot) handle(ctx context.Context, channel, user string, badges map[string]int, text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return ""
	}
	cmd, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)
	log := b.log.With(slog.String("channel", channel), slog.String("user", user), slog.String("cmd", cmd))

	switch strings.ToLower(cmd) {
	case "!dj":
		if b.ctl == nil {
			return ""
		}
		seeds := parseSeeds(args)
		if _, err := b.ctl.Start(ctx, channel, channel, user, seeds); err != nil {
			if errors.Is(err, dj.ErrSessionExists) {
				return "DJ mode is already running here. Use !stop first."
			}
			log.Error("dj start failed", slog.Any("err", err))
			return "Couldn't start DJ mode."
		}
		log.Info("dj start requested", slog.Any("seeds", seeds))
		if seeds.Empty() {
			return fmt.Sprintf("@%s DJ mode on. Picking something good...", user)
		}
		return fmt.Sprintf("@%s DJ mode on. Working from your request...", user)
	case "!skip":
		if b.ctl == nil {
			return ""
		}
		switch err := b.ctl.Skip(channel, user); {
		case err == nil:
			return ""
		case errors.Is(err, dj.ErrNoSession):
			return "DJ mode isn't running."
		case errors.Is(err, dj.ErrNothingPlaying):
			return "Nothing is playing right now."
		default:
			log.Warn("skip failed", slog.Any("err", err))
			return ""
		}
	case "!stop":
		if b.ctl == nil {
			return ""
		}
		if err := b.ctl.Stop(channel); err != nil {
			if errors.Is(err, dj.ErrNoSession) {
				return "DJ mode isn't running."
			}
			log.Warn("stop failed", slog.Any("err", err))
			return ""
		}
		return "DJ mode stopped."
	case "!voice":
		return b.voice(ctx, channel, badges, args, log)
	}
	return ""
}

func (b *Bot) voice(ctx context.Context, channel string, badges map[string]int, key string, log *slog.Logger) string {
	if b.voices == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if key == "" {
		cur, err := b.voices.GuildVoice(ctx, channel)
		if err != nil {
			log.Warn("voice lookup failed", slog.Any("err", err))
			return ""
		}
		if cur == "" {
			cur = "default"
		}
		return fmt.Sprintf("Voice: %s. Available: %s", cur, strings.Join(commentary.VoiceKeys(), ", "))
	}
	if !privileged(badges) {
		return "Only moderators can change the DJ voice."
	}
	key = strings.ToLower(key)
	if key == "default" || key == "reset" {
		key = ""
	} else if _, ok := commentary.LookupVoice(key); !ok {
		return fmt.Sprintf("Unknown voice %q. Available: %s", key, strings.Join(commentary.VoiceKeys(), ", "))
	}
	if err := b.voices.SetGuildVoice(ctx, channel, key); err != nil {
		log.Error("voice update failed", slog.Any("err", err))
		return "Couldn't save the voice setting."
	}
	if key == "" {
		return "Voice reset to default."
	}
	return "Voice set to " + key + "."
}

func privileged(badges map[string]int) bool {
	return badges["broadcaster"] > 0 || badges["moderator"] > 0
}

// parseSeeds reads "song: X; artist: Y; genre: Z". Anything without a known
// key (including links) becomes the free-text prompt.
func parseSeeds(args string) media.Seeds {
	var s media.Seeds
	if args == "" {
		return s
	}
	var rest []string
	for _, part := range strings.Split(args, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, ":")
		v = strings.TrimSpace(v)
		if ok && v != "" {
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "song", "title":
				s.Song = v
				continue
			case "artist", "by":
				s.Artist = v
				continue
			case "genre":
				s.Genre = v
				continue
			case "prompt":
				rest = append(rest, v)
				continue
			}
		}
		rest = append(rest, part)
	}
	s.Prompt = strings.Join(rest, "; ")
	return s
}
