package telegram

import (
	"sync"
	"time"

	"deribit-alert-bot/internal/market"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
	FetchTimeout   time.Duration // deadline for seed-price lookups on alert creation
}

// Bot telegram interaction client
type Bot struct {
	Bot    *tgbotapi.BotAPI
	Config BotConfig
	market *market.Client

	mu            sync.Mutex
	pendingSymbol map[int64]string // chat -> instrument awaiting a target price
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}
