package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/model"
)

// Embed colours.
const (
	ColorPending = 15844367
	ColorLoss    = 16711680
	ColorProfit  = 9498256
	ColorKickoff = 12370112
)

const notifiedAtLayout = "2006-01-02 15:04:05"

var ErrUnknownEventKind = errors.New("unknown event kind")

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type webhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// FormatEmbed renders an outbox payload as a Discord embed.
func FormatEmbed(kind string, payload []byte, now time.Time) (Embed, error) {
	footer := &EmbedFooter{Text: "Notified at • " + now.Format(notifiedAtLayout)}

	switch kind {
	case model.EventPendingOrder:
		var p model.PendingOrder
		if err := json.Unmarshal(payload, &p); err != nil {
			return Embed{}, fmt.Errorf("decode %s: %w", kind, err)
		}
		arrow := "↘"
		if p.Side == model.SideBuy {
			arrow = "↗"
		}
		return Embed{
			Title:       fmt.Sprintf("%s `Pending` Order `(%s)` Generated", arrow, p.Instrument),
			Description: fmt.Sprintf("Please place a new %s order", p.Side),
			Color:       ColorPending,
			Fields: []EmbedField{
				{Name: "**Order Type**", Value: p.Side, Inline: true},
				{Name: "**Price**", Value: p.Price.String(), Inline: true},
				{Name: "**Fib. Ratio**", Value: formatRatio(p.FibRatio), Inline: true},
				{Name: "**Generated At**", Value: p.GeneratedAt.String()},
				{Name: "**System timestamp**", Value: p.SystemTime.String()},
			},
			Footer: footer,
		}, nil

	case model.EventPositionClose:
		var c model.ClosedPosition
		if err := json.Unmarshal(payload, &c); err != nil {
			return Embed{}, fmt.Errorf("decode %s: %w", kind, err)
		}
		color := ColorProfit
		if c.Outcome == model.OutcomeLoss {
			color = ColorLoss
		}
		pos := c.Position
		return Embed{
			Title:       fmt.Sprintf("`%s` Position closed `(%s)`: %s", pos.Side, pos.Instrument, c.Outcome),
			Description: fmt.Sprintf("An open position (level: %s) has just been exited", formatRatio(pos.FibRatio)),
			Color:       color,
			Fields: []EmbedField{
				{Name: "**Entry Price**", Value: pos.EntryPrice.String(), Inline: true},
				{Name: "**Entry Time**", Value: pos.EntryTime.String(), Inline: true},
				{Name: "**Take Profit**", Value: pos.TakeProfit.String(), Inline: true},
				{Name: "**Stop Loss**", Value: pos.StopLoss.String(), Inline: true},
				{Name: "**Closing Price**", Value: c.ExitPrice.String(), Inline: true},
				{Name: "**Closing Time**", Value: c.ExitTime.String(), Inline: true},
				{Name: "**Net**", Value: c.Net.String(), Inline: true},
				{Name: "**System timestamp**", Value: c.SystemTime.String()},
			},
			Footer: footer,
		}, nil

	case model.EventKickoff:
		var k model.Kickoff
		if err := json.Unmarshal(payload, &k); err != nil {
			return Embed{}, fmt.Errorf("decode %s: %w", kind, err)
		}
		return Embed{
			Title:       "`Kickoff notification` " + k.Instrument,
			Description: fmt.Sprintf("Bot has started running with Point A: %s and Point B: %s", k.PointA, k.PointB),
			Color:       ColorKickoff,
			Footer:      footer,
		}, nil
	}
	return Embed{}, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// DiscordNotifier posts embeds to a webhook.
type DiscordNotifier struct {
	http *resty.Client
	url  string
	now  func() time.Time
	log  *logrus.Entry
}

func NewDiscordNotifier(webhookURL string, log *logrus.Entry) *DiscordNotifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DiscordNotifier{
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json"),
		url: webhookURL,
		now: time.Now,
		log: log.WithField("component", "discord"),
	}
}

// Notify formats the event and posts it. Any non-2xx answer is an error so
// the caller keeps the event for a later attempt.
func (d *DiscordNotifier) Notify(ctx context.Context, kind string, payload []byte) error {
	embed, err := FormatEmbed(kind, payload, d.now())
	if err != nil {
		return err
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(webhookPayload{Embeds: []Embed{embed}}).
		Post(d.url)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("discord webhook: status %d: %s", resp.StatusCode(), resp.String())
	}
	d.log.WithFields(logrus.Fields{"kind": kind, "status": resp.StatusCode()}).Debug("discord notification sent")
	return nil
}
