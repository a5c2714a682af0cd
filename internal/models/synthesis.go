package models

import (
	"fmt"
	"strings"
	"time"
)

// ChunkMeta is copied from the source article when a chunk is cut.
type ChunkMeta struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	SourceName  string    `json:"source_name"`
	PublishedAt time.Time `json:"published_at"`
	TopicID     int       `json:"topic_id"`
	Snippet     string    `json:"snippet"`
}

// Chunk is a bounded slice of one article's text. Start and End are rune
// offsets into the article's FullText.
type Chunk struct {
	ID    string    `json:"id"`
	Text  string    `json:"text"`
	Start int       `json:"start"`
	End   int       `json:"end"`
	Meta  ChunkMeta `json:"meta"`
}

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type SynthesisResult struct {
	AnswerText string   `json:"answer_text"`
	Sources    []Source `json:"sources"`
}

// Task selects the instruction template used for generation.
type Task string

const (
	TaskReport         Task = "report"
	TaskTimeline       Task = "timeline"
	TaskContradictions Task = "contradictions"
)

func AllTasks() []Task {
	return []Task{TaskReport, TaskTimeline, TaskContradictions}
}

func ParseTask(s string) (Task, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "report", "summary":
		return TaskReport, nil
	case "timeline":
		return TaskTimeline, nil
	case "contradictions", "contradiction", "conflicts":
		return TaskContradictions, nil
	default:
		return "", fmt.Errorf("unknown task %q", s)
	}
}

// ParseTasks parses a comma separated task list, dropping duplicates.
func ParseTasks(s string) ([]Task, error) {
	if strings.TrimSpace(s) == "" {
		return []Task{TaskReport}, nil
	}
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return AllTasks(), nil
	}

	var tasks []Task
	seen := make(map[Task]bool)
	for _, part := range strings.Split(s, ",") {
		task, err := ParseTask(part)
		if err != nil {
			return nil, err
		}
		if seen[task] {
			continue
		}
		seen[task] = true
		tasks = append(tasks, task)
	}
	return tasks, nil
}

type Status string

const (
	StatusOK                Status = "ok"
	StatusNoArticles        Status = "no_articles"
	StatusSearchUnavailable Status = "search_unavailable"
)

// Report is the outcome of one query-processing cycle.
type Report struct {
	RequestID   string                   `json:"request_id"`
	Query       string                   `json:"query"`
	Status      Status                   `json:"status"`
	Message     string                   `json:"message,omitempty"`
	Articles    []Article                `json:"articles"`
	Topics      map[int]int              `json:"topics"`
	Results     map[Task]SynthesisResult `json:"results"`
	// Degraded is set when a model or the request itself failed part way,
	// so the report says nothing lasting about the query.
	Degraded    bool                     `json:"degraded,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
}
