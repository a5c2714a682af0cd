package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/models"
)

// maxMessageLen is Telegram's limit on one message's text.
const maxMessageLen = 4096

// Answerer runs a query through the pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string, tasks []models.Task) models.Report
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	client     sender
	answerer   Answerer
	webhookURL string
	logger     *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	closed bool
	wg     sync.WaitGroup
}

func NewBot(token, webhookURL string, answerer Answerer, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b := newBot(api, answerer, logger)
	b.api = api
	b.webhookURL = webhookURL
	return b, nil
}

func newBot(client sender, answerer Answerer, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		client:   client,
		answerer: answerer,
		logger:   logger.Named("telegram"),
		ctx:      context.Background(),
	}
}

// Start registers the webhook when a URL is configured and otherwise long
// polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if b.webhookURL != "" {
		webhook, err := tgbotapi.NewWebhook(b.webhookURL)
		if err != nil {
			return err
		}
		if _, err := b.api.Request(webhook); err != nil {
			return err
		}

		info, err := b.api.GetWebhookInfo()
		if err != nil {
			return err
		}
		if info.LastErrorDate != 0 {
			b.logger.Warn("telegram webhook last error", zap.String("message", info.LastErrorMessage))
		}
		b.logger.Info("telegram webhook registered", zap.String("url", b.webhookURL))
		return nil
	}

	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to clear telegram webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()
	go func() {
		for update := range updates {
			b.dispatch(update)
		}
	}()

	b.logger.Info("telegram long polling started")
	return nil
}

// WebhookHandler accepts updates pushed by Telegram.
func (b *Bot) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		update, err := b.api.HandleUpdate(r)
		if err != nil {
			b.logger.Warn("bad webhook update", zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}

		b.dispatch(*update)
		w.WriteHeader(http.StatusOK)
	})
}

// Wait stops accepting updates and blocks until every in-flight one has
// been answered.
func (b *Bot) Wait() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bot) dispatch(update tgbotapi.Update) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	ctx := b.ctx
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.handleUpdate(ctx, update)
	}()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if !msg.IsCommand() {
		b.handleUnknownCommand(chatID)
		return
	}

	query := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.handleHelp(chatID)
	case "ask":
		b.handleQuery(ctx, chatID, query, models.TaskReport)
	case "timeline":
		b.handleQuery(ctx, chatID, query, models.TaskTimeline)
	case "contradictions":
		b.handleQuery(ctx, chatID, query, models.TaskContradictions)
	default:
		b.handleUnknownCommand(chatID)
	}
}

func (b *Bot) handleQuery(ctx context.Context, chatID int64, query string, task models.Task) {
	if query == "" {
		b.sendMessage(chatID, fmt.Sprintf("Please add a query, for example: /%s %s", commandFor(task), "mars rover landing"))
		return
	}

	b.logger.Info("telegram query", zap.Int64("chat_id", chatID), zap.String("task", string(task)))
	report := b.answerer.Answer(ctx, query, []models.Task{task})
	for _, part := range splitMessage(FormatReport(report, task), maxMessageLen) {
		b.sendMessage(chatID, part)
	}
}

func commandFor(task models.Task) string {
	if task == models.TaskReport {
		return "ask"
	}
	return string(task)
}

const helpText = `<b>News RAG</b> 📰

I search recent news, group the stories by topic and answer with cited sources.

Commands:
/ask &lt;query&gt; - Narrative report
/timeline &lt;query&gt; - Chronological timeline of events
/contradictions &lt;query&gt; - Where the reports disagree
/help - Show this help`

func (b *Bot) handleHelp(chatID int64) {
	b.sendMessage(chatID, helpText)
}

func (b *Bot) handleUnknownCommand(chatID int64) {
	b.sendMessage(chatID, "Unknown command. Use /help for available commands.")
}

// FormatReport renders the result for task as Telegram HTML.
func FormatReport(report models.Report, task models.Task) string {
	if report.Status != models.StatusOK {
		return html.EscapeString(report.Message)
	}

	res, ok := report.Results[task]
	if !ok {
		return "No answer could be generated."
	}

	var sb strings.Builder
	sb.WriteString(html.EscapeString(res.AnswerText))
	if len(res.Sources) > 0 {
		sb.WriteString("\n\n<b>Sources</b>")
		for i, src := range res.Sources {
			title := src.Title
			if title == "" {
				title = src.URL
			}
			fmt.Fprintf(&sb, "\n%d. <a href=\"%s\">%s</a>", i+1, html.EscapeString(src.URL), html.EscapeString(title))
		}
	}
	return sb.String()
}

// splitMessage cuts text into parts of at most limit runes, preferring
// line breaks. Cuts never fall inside a tag, an entity or an open element
// unless a single one is longer than limit.
func splitMessage(text string, limit int) []string {
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := cutPoint(runes[:limit])
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// cutPoint picks where to end a part made from window.
func cutPoint(window []rune) int {
	limit := len(window)
	safe := safeCuts(window)

	for p := limit; p > limit/2+1; p-- {
		if safe[p] && window[p-1] == '\n' {
			return p
		}
	}
	for p := limit; p > 0; p-- {
		if safe[p] {
			return p
		}
	}
	return limit
}

// safeCuts reports for each offset in 0..len(runes) whether the HTML
// before it is balanced.
func safeCuts(runes []rune) []bool {
	safe := make([]bool, len(runes)+1)
	safe[0] = true

	var inTag, closing, selfClosing, inEntity bool
	depth := 0
	for i, r := range runes {
		switch {
		case inTag:
			if r == '>' {
				inTag = false
				switch {
				case closing:
					depth = max(depth-1, 0)
				case !selfClosing:
					depth++
				}
			} else {
				if r == '/' && runes[i-1] == '<' {
					closing = true
				}
				selfClosing = r == '/'
			}
		case inEntity:
			if r == ';' || r == ' ' || r == '\n' {
				inEntity = false
			}
		case r == '<':
			inTag, closing, selfClosing = true, false, false
		case r == '&':
			inEntity = true
		}
		safe[i+1] = !inTag && !inEntity && depth == 0
	}
	return safe
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := b.client.Send(msg); err != nil {
		b.logger.Warn("failed to send telegram message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
