package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/generator"
	"github.com/bench-history/tracker/types"
)

var severityColor = map[string]string{
	"minor":    "warning",
	"major":    "#e8912d",
	"critical": "danger",
}

// Notifier posts performance alerts to a Slack incoming webhook
type Notifier struct {
	cfg     config.SlackConfig
	repoURL string
	client  *http.Client
	log     logrus.FieldLogger
}

// New creates a notifier. It does nothing when no webhook is configured.
func New(cfg config.SlackConfig, repoURL string, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		cfg:     cfg,
		repoURL: repoURL,
		client:  http.DefaultClient,
		log:     log.WithField("component", "notifier"),
	}
}

// Enabled reports whether alerts will be sent
func (n *Notifier) Enabled() bool {
	return n != nil && n.cfg.Enabled()
}

// NotifyAlerts sends the alerts of a report, if any fired
func (n *Notifier) NotifyAlerts(ctx context.Context, report *types.AlertReport) error {
	if !n.Enabled() || !report.HasAlerts() {
		return nil
	}

	text, err := generator.AlertMarkdown(report, n.repoURL)
	if err != nil {
		return err
	}

	msg := &slack.WebhookMessage{
		Channel:     n.cfg.Channel,
		Username:    n.cfg.Username,
		IconEmoji:   n.cfg.IconEmoji,
		Text:        text,
		Attachments: attachments(report.Alerts),
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.cfg.WebhookURL, n.client, msg); err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}

	n.log.WithFields(logrus.Fields{
		"group":  report.Comparison.Group,
		"alerts": len(report.Alerts),
	}).Info("Sent performance alert to Slack")
	return nil
}

func attachments(alerts []types.Alert) []slack.Attachment {
	out := make([]slack.Attachment, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, slack.Attachment{
			Color: severityColor[a.Severity],
			Title: fmt.Sprintf("%s: %s", a.Group, a.Bench),
			Fields: []slack.AttachmentField{
				{Title: "Current", Value: strconv.FormatFloat(a.Current, 'f', -1, 64) + " " + a.Unit, Short: true},
				{Title: "Previous", Value: strconv.FormatFloat(a.Previous, 'f', -1, 64) + " " + a.Unit, Short: true},
				{Title: "Ratio", Value: strconv.FormatFloat(a.Ratio, 'f', 2, 64), Short: true},
				{Title: "Severity", Value: a.Severity, Short: true},
			},
		})
	}
	return out
}
