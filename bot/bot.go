package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/studyquizbot/apiclient"
	"github.com/korjavin/studyquizbot/config"
	"github.com/korjavin/studyquizbot/quiz"
)

const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdCount    = "count"
	cmdGenerate = "generate"
	cmdReset    = "reset"
	cmdStatus   = "status"

	callbackAnswer   = "answer:"
	callbackSubmit   = "submit"
	callbackNext     = "next"
	callbackGenerate = "generate"
	callbackReset    = "reset"

	generationTimeout = 3 * time.Minute
	downloadTimeout   = 60 * time.Second
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

// Bot is the Telegram interface to a single quiz session
type Bot struct {
	api        telegramAPI
	session    *quiz.Session
	httpClient *http.Client
	logger     *log.Logger

	mu     sync.Mutex
	chatID int64 // the one chat this session belongs to, 0 until bound

	wg sync.WaitGroup
}

// New creates a new bot instance
func New(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	botAPI.Debug = cfg.Debug

	client := apiclient.New(cfg.GeneratorBaseURL, apiclient.WithLogger(logger))
	logger.Printf("Quiz generation endpoint: %s", client.Endpoint())

	return newBot(botAPI, client, cfg.ChatID, logger), nil
}

func newBot(api telegramAPI, gen quiz.Generator, chatID int64, logger *log.Logger) *Bot {
	b := &Bot{
		api:        api,
		httpClient: &http.Client{Timeout: downloadTimeout},
		logger:     logger,
		chatID:     chatID,
	}
	b.session = quiz.New(gen, quiz.WithNotifier(b), quiz.WithLogger(logger))
	return b
}

// Start listens for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) {
	b.logger.Println("Starting bot polling...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.logger.Println("Stopping bot, waiting for pending generation")
			b.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	} else if update.Message != nil {
		b.handleMessage(update.Message)
	}
}

// acceptChat binds the session to the first chat seen and rejects all others
func (b *Bot) acceptChat(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chatID == 0 {
		b.chatID = chatID
		b.logger.Printf("Session bound to chat %d", chatID)
		return true
	}
	if chatID != b.chatID {
		b.logger.Printf("Ignoring update from chat %d, session belongs to chat %d", chatID, b.chatID)
		return false
	}
	return true
}

func (b *Bot) boundChat() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chatID
}

// Notify implements quiz.Notifier by posting notifications to the chat
func (b *Bot) Notify(n quiz.Notification) {
	chatID := b.boundChat()
	if chatID == 0 {
		return
	}
	b.sendMessage(chatID, formatNotification(n))
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if message.Chat == nil || !b.acceptChat(message.Chat.ID) {
		return
	}
	chatID := message.Chat.ID
	b.logger.Printf("Received message in chat %d: %q", chatID, message.Text)

	if message.Document != nil {
		b.handleDocument(chatID, message.Document)
		return
	}

	if !message.IsCommand() {
		b.sendMessage(chatID, "Send me a study document, or use /help to see what I can do.")
		return
	}

	switch message.Command() {
	case cmdStart, cmdHelp:
		b.sendMessage(chatID, welcomeText)
		b.render(chatID)
	case cmdCount:
		b.handleCount(chatID, message.CommandArguments())
	case cmdGenerate:
		b.startGeneration(chatID)
	case cmdReset:
		b.session.Reset()
		b.render(chatID)
	case cmdStatus:
		b.render(chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help to see the available commands.")
	}
}

func (b *Bot) handleDocument(chatID int64, doc *tgbotapi.Document) {
	file := quiz.File{
		Name:      doc.FileName,
		MediaType: doc.MimeType,
		Size:      int64(doc.FileSize),
		Open:      b.opener(doc.FileID),
	}

	err := b.session.SelectFile(file)
	switch {
	case errors.Is(err, quiz.ErrInvalidFileType):
		// the session already notified the chat
		return
	case errors.Is(err, quiz.ErrInvalidPhase):
		b.sendMessage(chatID, "A quiz is in progress. Finish it or use /reset before uploading a new file.")
		return
	case err != nil:
		b.logger.Printf("Error selecting file: %v", err)
		b.sendMessage(chatID, "Error selecting file")
		return
	}
	b.render(chatID)
}

// opener downloads the Telegram file only when the generation request is built
func (b *Bot) opener(fileID string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		url, err := b.api.GetFileDirectURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
		}
		resp, err := b.httpClient.Get(url)
		if err != nil {
			return nil, fmt.Errorf("download file %s: %w", fileID, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("download file %s: status %d", fileID, resp.StatusCode)
		}
		return resp.Body, nil
	}
}

func (b *Bot) handleCount(chatID int64, args string) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < quiz.MinQuestions || n > quiz.MaxQuestions {
		b.sendMessage(chatID, fmt.Sprintf("Please enter a number between %d and %d, e.g. /count 5", quiz.MinQuestions, quiz.MaxQuestions))
		return
	}
	if err := b.session.SetQuestionCount(n); err != nil {
		b.logger.Printf("Error setting question count: %v", err)
		b.sendMessage(chatID, "The number of questions can only be changed before the quiz starts.")
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("Number of questions set to %d.", n))
}

// startGeneration runs the generation request off the update loop so the bot stays responsive
func (b *Bot) startGeneration(chatID int64) {
	snap := b.session.Snapshot()
	if snap.Phase == quiz.PhaseLoading {
		b.sendMessage(chatID, "Your quiz is already being generated, please wait...")
		return
	}
	if snap.HasFile && (snap.Phase == quiz.PhaseIdle || snap.Phase == quiz.PhaseError) {
		b.sendMessage(chatID, loadingText)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Printf("Recovered from panic in generation goroutine: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
		defer cancel()

		err := b.session.RequestGeneration(ctx)
		switch {
		case errors.Is(err, quiz.ErrNoFileSelected),
			errors.Is(err, quiz.ErrGenerationInProgress),
			errors.Is(err, quiz.ErrSessionReset):
			return
		case errors.Is(err, quiz.ErrInvalidPhase):
			b.sendMessage(chatID, "A quiz is already in progress. Use /reset to start over.")
			return
		case err != nil:
			b.logger.Printf("Generation finished with error: %v", err)
		}
		b.render(chatID)
	}()
}

// handleCallback processes callback queries from inline buttons
func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.Message.Chat == nil || !b.acceptChat(callback.Message.Chat.ID) {
		return
	}
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID
	b.logger.Printf("Handling callback in chat %d with data: %s", chatID, callback.Data)

	ack := ""
	switch data := callback.Data; {
	case strings.HasPrefix(data, callbackAnswer):
		ack = b.handleAnswerCallback(chatID, messageID, strings.TrimPrefix(data, callbackAnswer))
	case data == callbackSubmit:
		if _, err := b.session.SubmitAnswer(); err != nil {
			ack = callbackError(err)
		} else {
			b.editCard(chatID, messageID)
		}
	case data == callbackNext:
		if err := b.session.Advance(); err != nil {
			ack = callbackError(err)
		} else {
			b.render(chatID)
		}
	case data == callbackGenerate:
		b.startGeneration(chatID)
	case data == callbackReset:
		b.session.Reset()
		b.render(chatID)
	default:
		b.logger.Printf("Invalid callback data: %s", data)
	}

	b.sendCallbackResponse(callback.ID, ack)
}

func (b *Bot) handleAnswerCallback(chatID int64, messageID int, payload string) string {
	parts := strings.Split(payload, ":")
	if len(parts) != 2 {
		b.logger.Printf("Invalid answer callback: %s", payload)
		return ""
	}
	questionIdx, err1 := strconv.Atoi(parts[0])
	optionIdx, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		b.logger.Printf("Invalid answer callback: %s", payload)
		return ""
	}

	snap := b.session.Snapshot()
	q, ok := snap.Current()
	if snap.Phase != quiz.PhaseAnswering || !ok || questionIdx != snap.CurrentIndex {
		return "This question is no longer active."
	}
	if optionIdx < 0 || optionIdx >= len(q.Options) {
		return ""
	}

	if err := b.session.SelectAnswer(q.Options[optionIdx]); err != nil {
		return callbackError(err)
	}
	b.editCard(chatID, messageID)
	return ""
}

func callbackError(err error) string {
	switch {
	case errors.Is(err, quiz.ErrAnswerRevealed):
		return "Answer already submitted."
	case errors.Is(err, quiz.ErrNoAnswerSelected):
		return "Select an answer first."
	case errors.Is(err, quiz.ErrAnswerNotRevealed):
		return "Submit your answer first."
	default:
		return "This action is not available right now."
	}
}

// render sends the card for the current session state
func (b *Bot) render(chatID int64) {
	text, markup := card(b.session.Snapshot())
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Printf("Error sending card: %v", err)
	}
}

// editCard redraws an existing card in place
func (b *Bot) editCard(chatID int64, messageID int) {
	text, markup := card(b.session.Snapshot())
	var edit tgbotapi.EditMessageTextConfig
	if markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Printf("Error editing card %d: %v", messageID, err)
		b.render(chatID)
	}
}

// sendMessage sends a text message
func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Printf("Error sending message: %v", err)
	}
}

// sendCallbackResponse sends a response to a callback query
func (b *Bot) sendCallbackResponse(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Printf("Error sending callback response: %v", err)
	}
}
