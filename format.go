package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ObiAU/newsrag/internal/models"
)

var taskHeadings = map[models.Task]string{
	models.TaskReport:         "Report",
	models.TaskTimeline:       "Timeline",
	models.TaskContradictions: "Contradictions",
}

// formatMarkdown lays the report out for terminal rendering, one section per
// task in the order requested.
func formatMarkdown(report models.Report, tasks []models.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", report.Query)

	if report.Status != models.StatusOK {
		fmt.Fprintf(&sb, "%s\n", report.Message)
		return sb.String()
	}

	fmt.Fprintf(&sb, "_%d articles, %s_\n\n", len(report.Articles), topicSummary(report.Topics))

	for _, task := range tasks {
		res, ok := report.Results[task]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", taskHeadings[task], res.AnswerText)
		if len(res.Sources) == 0 {
			continue
		}
		sb.WriteString("### Sources\n\n")
		for i, src := range res.Sources {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, src.Title, src.URL)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func topicSummary(topics map[int]int) string {
	clusters, noise := 0, 0
	for id, n := range topics {
		if id == models.NoiseTopic {
			noise = n
			continue
		}
		clusters++
	}

	switch clusters {
	case 0:
		return "no topic clusters"
	case 1:
		return fmt.Sprintf("1 topic cluster, %d unclustered", noise)
	default:
		return fmt.Sprintf("%d topic clusters, %d unclustered", clusters, noise)
	}
}

func printJSON(cmd *cobra.Command, report models.Report) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
