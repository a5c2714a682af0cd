package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ObiAU/newsrag/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type fakeAnswerer struct {
	mu     sync.Mutex
	report models.Report
	query  string
	tasks  []models.Task
}

func (f *fakeAnswerer) Answer(_ context.Context, query string, tasks []models.Task) models.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query, f.tasks = query, tasks
	return f.report
}

func command(text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: 42},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestCommands(t *testing.T) {
	report := models.Report{
		Status: models.StatusOK,
		Results: map[models.Task]models.SynthesisResult{
			models.TaskTimeline: {
				AnswerText: "May 1: Launch <delayed>.",
				Sources:    []models.Source{{Title: "Launch news", URL: "https://news.test/launch"}},
			},
		},
	}

	tests := []struct {
		text     string
		wantTask models.Task
		contains string
	}{
		{"/timeline rocket launch", models.TaskTimeline, "May 1: Launch &lt;delayed&gt;."},
		{"/ask rocket launch", models.TaskReport, "No answer could be generated."},
		{"/contradictions rocket launch", models.TaskContradictions, "No answer could be generated."},
		{"/help", "", "/timeline &lt;query&gt;"},
		{"/start", "", "Commands:"},
		{"/ask", "", "Please add a query"},
		{"/weather", "", "Unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			sender := &recordingSender{}
			answerer := &fakeAnswerer{report: report}
			b := newBot(sender, answerer, zaptest.NewLogger(t))

			b.dispatch(command(tt.text))
			b.Wait()

			require.Len(t, sender.sent, 1)
			msg := sender.sent[0]
			assert.Equal(t, int64(42), msg.ChatID)
			assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
			assert.Contains(t, msg.Text, tt.contains)

			if tt.wantTask != "" {
				assert.Equal(t, "rocket launch", answerer.query)
				assert.Equal(t, []models.Task{tt.wantTask}, answerer.tasks)
			} else {
				assert.Empty(t, answerer.tasks)
			}
		})
	}
}

func TestPlainTextIsUnknown(t *testing.T) {
	sender := &recordingSender{}
	b := newBot(sender, &fakeAnswerer{}, nil)

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 1}}})
	b.handleUpdate(context.Background(), tgbotapi.Update{})

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Unknown command")
}

func TestFormatReport(t *testing.T) {
	report := models.Report{
		Status: models.StatusOK,
		Results: map[models.Task]models.SynthesisResult{
			models.TaskReport: {
				AnswerText: "Floods & outages.",
				Sources: []models.Source{
					{Title: "One", URL: "https://news.test/1"},
					{URL: "https://news.test/2?a=1&b=2"},
				},
			},
		},
	}

	got := FormatReport(report, models.TaskReport)
	assert.Equal(t, "Floods &amp; outages.\n\n<b>Sources</b>"+
		"\n1. <a href=\"https://news.test/1\">One</a>"+
		"\n2. <a href=\"https://news.test/2?a=1&amp;b=2\">https://news.test/2?a=1&amp;b=2</a>", got)

	failed := models.Report{Status: models.StatusSearchUnavailable, Message: "Search is down <try later>"}
	assert.Equal(t, "Search is down &lt;try later&gt;", FormatReport(failed, models.TaskReport))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	text := strings.Repeat("line of text\n", 10)
	parts := splitMessage(text, 40)
	assert.Equal(t, text, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 40)
		assert.True(t, strings.HasSuffix(p, "\n"))
	}

	hard := splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, hard)
}

func TestSplitMessageKeepsHTMLWhole(t *testing.T) {
	entity := splitMessage(strings.Repeat("a", 8)+"&amp;b", 10)
	assert.Equal(t, []string{strings.Repeat("a", 8), "&amp;b"}, entity)

	tag := splitMessage(strings.Repeat("w", 10)+"<b>Sources</b>", 16)
	assert.Equal(t, []string{strings.Repeat("w", 10), "<b>Sources</b>"}, tag)

	link := `<a href="https://news.test/a?x=1&amp;y=2">Storm &amp; floods</a>`
	text := "Intro line.\n" + link + "\n" + link
	parts := splitMessage(text, len([]rune(link))+5)
	assert.Equal(t, text, strings.Join(parts, ""))
	for _, p := range parts {
		assert.Equal(t, strings.Count(p, "<a "), strings.Count(p, "</a>"), "unbalanced part %q", p)
		assert.Equal(t, strings.Count(p, "&"), strings.Count(p, ";"), "split entity in %q", p)
	}
}

func TestDispatchAfterWaitIsDropped(t *testing.T) {
	sender := &recordingSender{}
	b := newBot(sender, &fakeAnswerer{}, nil)

	b.Wait()
	b.dispatch(command("/help"))
	b.Wait()
	assert.Empty(t, sender.sent)
}
