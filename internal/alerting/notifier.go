package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Stage identifies how close a reward period is to its finish.
type Stage string

const (
	// StageExpiring fires once the period end is within the configured lead time.
	StageExpiring Stage = "expiring"
	// StageExpired fires once the period has ended.
	StageExpired Stage = "expired"
)

// Notification carries the context of one reward period alert.
type Notification struct {
	Pool          common.Hash
	Slot          string
	Asset         common.Address
	Stage         Stage
	Bucket        time.Time
	PeriodFinish  time.Time
	RewardRate    decimal.Decimal
	VaultBalance  decimal.Decimal
	TotalStaked   decimal.Decimal
	Channels      []string
	AdditionalMsg string
}

// Notifier delivers alerts to a channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify posts the rendered text via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("pool", note.Pool.Hex()).
		Str("slot", note.Slot).
		Str("stage", string(note.Stage)).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert sent (telegram)")
	return nil
}

// LogNotifier writes alerts to the log for deployments without an external channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a log notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().
		Str("pool", note.Pool.Hex()).
		Str("slot", note.Slot).
		Str("stage", string(note.Stage)).
		Time("period_finish", note.PeriodFinish).
		Str("vault_balance", note.VaultBalance.String()).
		Msg(strings.TrimSpace(renderMessage(note)))
	return nil
}

// Multi delivers to every channel in order and returns the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	switch note.Stage {
	case StageExpired:
		builder.WriteString("[Farm Alert] reward period ended\n")
	default:
		builder.WriteString("[Farm Alert] reward period ending soon\n")
	}
	builder.WriteString(fmt.Sprintf("Pool: %s\n", note.Pool.Hex()))
	builder.WriteString(fmt.Sprintf("Slot: %s (%s)\n", note.Slot, note.Asset.Hex()))
	builder.WriteString(fmt.Sprintf("Period finish: %s UTC\n", note.PeriodFinish.UTC().Format(time.RFC3339)))
	if note.Stage != StageExpired {
		left := note.PeriodFinish.Sub(note.Bucket).Truncate(time.Second)
		builder.WriteString(fmt.Sprintf("Time left: %s\n", left))
	}
	builder.WriteString(fmt.Sprintf("Reward rate: %s /s\n", note.RewardRate.String()))
	builder.WriteString(fmt.Sprintf("Vault balance: %s\n", note.VaultBalance.String()))
	builder.WriteString(fmt.Sprintf("Total staked: %s\n", note.TotalStaked.String()))
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
