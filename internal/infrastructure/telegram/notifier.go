package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
)

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishSummary posts a Markdown run report to Telegram.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.RunSummary) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatSummary(summary))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// formatSummary renders the run report with sources in a stable order.
func formatSummary(summary domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Event scan %s*\n", summary.StartedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Published: %d events in %s\n", summary.Published, summary.Duration.Round(time.Second))

	sources := make([]string, 0, len(summary.Fetched))
	for src := range summary.Fetched {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		fmt.Fprintf(&b, "- %s: %d records\n", src, summary.Fetched[domain.Source(src)])
	}

	failed := make([]string, 0, len(summary.Failed))
	for src := range summary.Failed {
		failed = append(failed, string(src))
	}
	sort.Strings(failed)
	for _, src := range failed {
		fmt.Fprintf(&b, "- %s: failed (%s)\n", src, summary.Failed[domain.Source(src)])
	}

	fmt.Fprintf(&b, "Dropped %d malformed, %d unclassified; merged %d; %d geocode misses",
		summary.Malformed, summary.Unclassified, summary.Merged, summary.GeocodeMisses)
	return b.String()
}
