package telegram

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"deribit-alert-bot/internal/database"
	"deribit-alert-bot/internal/market"
	"deribit-alert-bot/lib/helpers"
	"deribit-alert-bot/lib/translation"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig, marketClient *market.Client) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}

	return &Bot{
		Bot:           bot,
		Config:        c,
		market:        marketClient,
		pendingSymbol: make(map[int64]string),
	}, nil
}

// GetUpdatesChannel gets new updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message: %v", m)
}

// Notify delivers a plain-text alert notification to a chat. It is the
// notifier the monitor fires crossings through.
func (b *Bot) Notify(chatID int64, text string) error {
	return b.SendMessage(Message{
		ChatID: chatID,
		Text:   helpers.EscapeMarkdownV2(text),
	})
}

func ParseArguments(args string) (string, string) {
	re := regexp.MustCompile(`^(\S+)\s*(.+)?$`)
	matches := re.FindStringSubmatch(args)

	if len(matches) >= 2 {
		symbol := matches[1]
		target := ""
		if len(matches) == 3 {
			target = strings.TrimSpace(matches[2])
		}
		return symbol, target
	}
	return "", ""
}

// HandleUpdate processes Telegram commands
func (b *Bot) HandleUpdate(u tgbotapi.Update) string {
	text := helpers.EscapeMarkdownV2(translation.Translate("Commands:\n/setalert - set a price alert\n/listalerts - list your active alerts\n/deletealert <number> - delete an alert"))
	log.Debugf("received command: %s", u.Message.Command())

	switch u.Message.Command() {
	case "setalert":
		return b.HandleSetAlertCommand(u)
	case "listalerts":
		return b.HandleAlertListCommand(u.Message.Chat.ID)
	case "deletealert":
		return b.HandleDeleteAlertCommand(u.Message.Chat.ID, u.Message.CommandArguments())
	}

	return text
}

// HandleSetAlertCommand starts the alert dialog. Without arguments it
// offers the available instruments as an inline keyboard; with
// "SYMBOL PRICE" arguments it creates the alert directly.
func (b *Bot) HandleSetAlertCommand(u tgbotapi.Update) string {
	chatID := u.Message.Chat.ID

	symbol, target := ParseArguments(u.Message.CommandArguments())
	if symbol != "" && target != "" {
		return b.createAlert(chatID, strings.ToUpper(symbol), target)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.Config.FetchTimeout)
	defer cancel()

	symbols, err := b.market.GetInstruments(ctx)
	if err != nil {
		log.Errorf("Failed to load instruments: %v", err)
		return helpers.EscapeMarkdownV2(translation.Translate("Could not load symbols, please try again later."))
	}
	if len(symbols) == 0 {
		return helpers.EscapeMarkdownV2(translation.Translate("No symbols available right now."))
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, symbol := range symbols {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(symbol, "alert_symbol|"+symbol),
		))
	}

	msg := tgbotapi.NewMessage(chatID, helpers.EscapeMarkdownV2(translation.Translate("Please select a symbol:")))
	msg.ParseMode = "MarkdownV2"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)

	if _, err := b.Bot.Send(msg); err != nil {
		log.Errorf("Failed to send symbol keyboard: %v", err)
	}
	return ""
}

// HandleCallbackQuery handles the symbol selection buttons.
func (b *Bot) HandleCallbackQuery(callbackQuery *tgbotapi.CallbackQuery) {
	data := callbackQuery.Data
	chatID := callbackQuery.Message.Chat.ID
	messageID := callbackQuery.Message.MessageID

	if !strings.HasPrefix(data, "alert_symbol|") {
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Unknown action. Please try again.")))
		return
	}

	symbol := strings.TrimPrefix(data, "alert_symbol|")

	b.mu.Lock()
	b.pendingSymbol[chatID] = symbol
	b.mu.Unlock()

	b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, ""))

	// drop the keyboard now that a symbol is chosen
	deleteMsg := tgbotapi.NewDeleteMessage(chatID, messageID)
	if _, err := b.Bot.Request(deleteMsg); err != nil {
		log.Errorf("Failed to delete symbol keyboard: %v", err)
	}

	err := b.SendMessage(Message{
		ChatID: chatID,
		Text: helpers.EscapeMarkdownV2(fmt.Sprintf(
			translation.Translate("You selected %s. Please enter the target price:"), symbol)),
	})
	if err != nil {
		log.Errorf("Failed to prompt for target price: %v", err)
	}
}

// HandleTextInput consumes the target price a user sends after picking a
// symbol. Messages outside the alert dialog are answered with a hint.
func (b *Bot) HandleTextInput(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	b.mu.Lock()
	symbol, ok := b.pendingSymbol[chatID]
	b.mu.Unlock()

	if !ok {
		b.reply(chatID, translation.Translate("Please select a symbol first using /setalert."))
		return
	}

	reply := b.createAlert(chatID, symbol, strings.TrimSpace(message.Text))
	if reply == "" {
		return
	}
	if err := b.SendMessage(Message{ChatID: chatID, Text: reply}); err != nil {
		log.Errorf("Failed to send alert reply: %v", err)
	}
}

// createAlert validates the target, seeds the baseline with one price
// lookup and stores the alert. Returns the MarkdownV2 reply text.
func (b *Bot) createAlert(chatID int64, symbol, target string) string {
	targetPrice, err := strconv.ParseFloat(target, 64)
	if err != nil {
		return helpers.EscapeMarkdownV2(translation.Translate("Please enter a valid price."))
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.Config.FetchTimeout)
	defer cancel()

	seedPrice, err := b.market.FetchPrice(ctx, symbol)
	if err != nil {
		log.Errorf("Failed to fetch seed price for %s: %v", symbol, err)
		return helpers.EscapeMarkdownV2(fmt.Sprintf(
			translation.Translate("Could not fetch the current price for %s, please try again later."), symbol))
	}

	if _, err := database.InsertAlert(chatID, symbol, targetPrice, seedPrice); err != nil {
		log.Errorf("Failed to save alert: %v", err)
		return helpers.EscapeMarkdownV2(translation.Translate("Failed to save alert. Please try again later."))
	}

	b.mu.Lock()
	delete(b.pendingSymbol, chatID)
	b.mu.Unlock()

	return helpers.EscapeMarkdownV2(fmt.Sprintf(
		translation.Translate("Alert set for %s at %s (current price %s)"),
		symbol,
		helpers.FormatPriceUS(targetPrice, false),
		helpers.FormatPriceUS(seedPrice, false),
	))
}

// HandleAlertListCommand lists the chat's active alerts with the ordinals
// /deletealert expects.
func (b *Bot) HandleAlertListCommand(chatID int64) string {
	alerts, err := database.GetActiveAlertsByChatID(chatID)
	if err != nil {
		log.Errorf("Failed to fetch alerts for chat %d: %v", chatID, err)
		return helpers.EscapeMarkdownV2(translation.Translate("Could not fetch your alerts, please try again later."))
	}

	if len(alerts) == 0 {
		return helpers.EscapeMarkdownV2(translation.Translate("No alerts set."))
	}

	var list strings.Builder
	list.WriteString(helpers.EscapeMarkdownV2(translation.Translate("Your alerts:")) + "\n")
	for idx, alert := range alerts {
		line := fmt.Sprintf("%d. %s at %s",
			idx+1,
			alert.Symbol,
			helpers.FormatPriceUS(alert.TargetPrice, false),
		)
		if created, err := time.Parse("2006-01-02 15:04:05", alert.CreatedAt); err == nil {
			line += fmt.Sprintf(" (set %s)", humanize.Time(created))
		}
		list.WriteString(helpers.EscapeMarkdownV2(line) + "\n")
	}

	return list.String()
}

// HandleDeleteAlertCommand deletes an alert by the ordinal shown in
// /listalerts.
func (b *Bot) HandleDeleteAlertCommand(chatID int64, args string) string {
	idx, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return helpers.EscapeMarkdownV2(translation.Translate("Usage: /deletealert <alert_number>"))
	}

	alerts, err := database.GetActiveAlertsByChatID(chatID)
	if err != nil {
		log.Errorf("Failed to fetch alerts for chat %d: %v", chatID, err)
		return helpers.EscapeMarkdownV2(translation.Translate("Could not fetch your alerts, please try again later."))
	}

	if idx < 1 || idx > len(alerts) {
		return helpers.EscapeMarkdownV2(translation.Translate("Invalid alert number."))
	}

	if err := database.DeleteAlert(alerts[idx-1].ID); err != nil {
		log.Errorf("Failed to delete alert %d: %v", alerts[idx-1].ID, err)
		return helpers.EscapeMarkdownV2(translation.Translate("Failed to delete alert. Please try again later."))
	}

	return helpers.EscapeMarkdownV2(translation.Translate("Alert deleted."))
}

func (b *Bot) reply(chatID int64, text string) {
	err := b.SendMessage(Message{
		ChatID: chatID,
		Text:   helpers.EscapeMarkdownV2(text),
	})
	if err != nil {
		log.Errorf("Failed to send reply: %v", err)
	}
}
