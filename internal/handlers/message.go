package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eatmoreapple/openwechat"
	"github.com/shopspring/decimal"

	"github.com/luckfunc/floorbot/internal/models"
	"github.com/luckfunc/floorbot/internal/services"
)

const (
	commandPrefix = "!"

	pongText        = "Pong!"
	fetchingText    = "🔍 Fetching floor price..."
	floorUsage      = "Please specify a collection name. Usage: !floor <collection>"
	trackUsage      = "Please specify a collection. Usage: !track <collection> [threshold%]"
	thresholdUsage  = "Threshold must be a positive number. Usage: !track <collection> [threshold%]"
	untrackUsage    = "Please specify a collection. Usage: !untrack <collection>"
	notSavedSuffix  = " (state may not be saved)"
	groupOnlyNotice = "Commands are only available in group chats"

	helpText = "Available commands:\n" +
		"!ping - Test bot\n" +
		"!floor <collection> - Get floor price\n" +
		"!track <collection> [threshold%] - Track collection\n" +
		"!untrack <collection> - Stop tracking\n" +
		"!tracked - Show tracked collections\n" +
		"!help - Show this message"
)

// Commands is the part of services.Core the chat layer drives.
type Commands interface {
	Track(ctx context.Context, subscriber, collection string, threshold decimal.NullDecimal) error
	Untrack(ctx context.Context, subscriber, collection string) (bool, error)
	ListTracked(subscriber string) map[string]models.WatchRecord
	FetchOnce(ctx context.Context, collection string) string
}

type TrackedRenderer interface {
	RenderTracked(ctx context.Context, tracked map[string]models.WatchRecord) ([]byte, error)
}

// Reply carries either a text or a PNG image.
type Reply struct {
	Text  string
	Image []byte
}

type Handler struct {
	core     Commands
	renderer TrackedRenderer
	log      *slog.Logger
}

// NewHandler wires the command set. A nil renderer keeps !tracked text only.
func NewHandler(core Commands, renderer TrackedRenderer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{core: core, renderer: renderer, log: log}
}

// HandleGroupMessage adapts Dispatch to openwechat. Subscribers are group
// user names.
func (h *Handler) HandleGroupMessage(ctx context.Context) openwechat.MessageHandler {
	return func(msg *openwechat.Message) {
		if !msg.IsText() || !strings.HasPrefix(strings.TrimSpace(msg.Content), commandPrefix) {
			return
		}
		if !msg.IsSendByGroup() {
			if _, err := msg.ReplyText(groupOnlyNotice); err != nil {
				h.log.Warn("reply failed", "error", err)
			}
			return
		}
		groupID := msg.FromUserName
		h.Dispatch(ctx, groupID, msg.Content, func(r Reply) {
			var err error
			if r.Image != nil {
				_, err = msg.ReplyImage(bytes.NewReader(r.Image))
			} else {
				_, err = msg.ReplyText(r.Text)
			}
			if err != nil {
				h.log.Warn("reply failed", "subscriber", groupID, "error", err)
			}
		})
	}
}

// Dispatch runs one chat command and reports whether content was a command.
func (h *Handler) Dispatch(ctx context.Context, subscriber, content string, reply func(Reply)) bool {
	command, args := splitCommand(content)
	switch command {
	case "!ping":
		reply(Reply{Text: pongText})
	case "!floor":
		h.handleFloor(ctx, args, reply)
	case "!track":
		h.handleTrack(ctx, subscriber, args, reply)
	case "!untrack":
		h.handleUntrack(ctx, subscriber, args, reply)
	case "!tracked":
		h.handleTracked(ctx, subscriber, reply)
	case "!help":
		reply(Reply{Text: helpText})
	default:
		return false
	}
	return true
}

func (h *Handler) handleFloor(ctx context.Context, args []string, reply func(Reply)) {
	if len(args) == 0 {
		reply(Reply{Text: floorUsage})
		return
	}
	reply(Reply{Text: fetchingText})
	reply(Reply{Text: h.core.FetchOnce(ctx, strings.Join(args, " "))})
}

func (h *Handler) handleTrack(ctx context.Context, subscriber string, args []string, reply func(Reply)) {
	if len(args) == 0 {
		reply(Reply{Text: trackUsage})
		return
	}
	collection := args[0]
	threshold, ok := parseThreshold(args[1:])
	if !ok {
		reply(Reply{Text: thresholdUsage})
		return
	}

	err := h.core.Track(ctx, subscriber, collection, threshold)
	switch {
	case errors.Is(err, services.ErrEmptyCollection):
		reply(Reply{Text: trackUsage})
		return
	case errors.Is(err, services.ErrInvalidThreshold):
		reply(Reply{Text: thresholdUsage})
		return
	}

	text := fmt.Sprintf("✅ Now tracking **%s**", collection)
	if threshold.Valid {
		text += fmt.Sprintf(" with %s%% change threshold", threshold.Decimal.String())
	}
	reply(Reply{Text: withSaveNotice(text, err)})
}

func (h *Handler) handleUntrack(ctx context.Context, subscriber string, args []string, reply func(Reply)) {
	if len(args) == 0 {
		reply(Reply{Text: untrackUsage})
		return
	}
	collection := strings.Join(args, " ")
	removed, err := h.core.Untrack(ctx, subscriber, collection)
	if !removed {
		reply(Reply{Text: fmt.Sprintf("Collection **%s** was not being tracked", collection)})
		return
	}
	reply(Reply{Text: withSaveNotice(fmt.Sprintf("❌ Stopped tracking **%s**", collection), err)})
}

func (h *Handler) handleTracked(ctx context.Context, subscriber string, reply func(Reply)) {
	tracked := h.core.ListTracked(subscriber)
	if h.renderer != nil && len(tracked) > 0 {
		image, err := h.renderer.RenderTracked(ctx, tracked)
		if err == nil {
			reply(Reply{Image: image})
			return
		}
		h.log.Warn("tracked card render failed, falling back to text", "subscriber", subscriber, "error", err)
	}
	reply(Reply{Text: services.FormatTrackedList(tracked)})
}

func splitCommand(content string) (string, []string) {
	fields := strings.Fields(content)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], commandPrefix) {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// parseThreshold accepts "5", "2.5" and "5%". No argument means no threshold.
func parseThreshold(args []string) (decimal.NullDecimal, bool) {
	if len(args) == 0 {
		return decimal.NullDecimal{}, true
	}
	value, err := decimal.NewFromString(strings.TrimSuffix(args[0], "%"))
	if err != nil || !value.IsPositive() {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(value), true
}

func withSaveNotice(text string, err error) string {
	if errors.Is(err, services.ErrPersistence) {
		return text + notSavedSuffix
	}
	return text
}
