// Optional Telegram notification of a finished run. Reporting failures are
// logged and never fail the run.

package reporter

import (
	"fmt"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
)

type TelegramReporter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// FromEnv builds a reporter from TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID.
// Returns (nil, nil) when the env vars are absent; reporting is opt-in.
func FromEnv() (*TelegramReporter, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	rawChat := os.Getenv("TELEGRAM_CHAT_ID")
	if token == "" || rawChat == "" {
		return nil, nil
	}

	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("reporter: invalid TELEGRAM_CHAT_ID: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("reporter: init telegram bot: %w", err)
	}
	return &TelegramReporter{bot: bot, chatID: chatID}, nil
}

// SendSummary pushes a run summary message.
func (t *TelegramReporter) SendSummary(result scraper.ScrapeResult) error {
	if t == nil {
		return nil
	}

	status := "✅ Scrape run finished"
	if !result.Success {
		status = "❌ Scrape run failed"
	}
	text := fmt.Sprintf(
		"%s\n📦 <b>%d jobs</b>\n🕒 %s\n%s",
		status, result.TotalJobs,
		result.Timestamp.Format("2006-01-02 15:04:05"),
		result.Message,
	)

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "HTML"
	if _, err := t.bot.Send(msg); err != nil {
		log.Warnf("Telegram summary failed: %v", err)
		return err
	}
	return nil
}
