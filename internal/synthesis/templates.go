package synthesis

import (
	"fmt"

	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/models"
)

const systemPrompt = `You are a world-class intelligence analyst. Answer the user's query using only the supplied context.
Never add facts, names, dates or figures that the context does not support.
If the context is insufficient to answer the query, say that you cannot provide an answer based on the available information.
Each context block starts with a header of the form "[n] Title (Outlet, date)" naming the article it comes from.
Do not mention the context itself. Never write phrases like "Based on the provided context". Just give the answer.`

var instructions = map[models.Task]string{
	models.TaskReport: `Synthesize a concise, coherent, multi-paragraph answer. Do not use bullet points.
The answer should read as a single, flowing narrative.`,

	models.TaskTimeline: `Reconstruct how the events developed over time as a chronological timeline.
Write one line per event in the form "<date or time reference>: <what happened>", earliest first.
Use only dates and times that appear in the context, including the publication date in each block's header; when an event has no date, place it by the order the context implies and write "Undated" as its reference.`,

	models.TaskContradictions: `Identify where the reports disagree with or contradict each other.
For each disagreement, state the competing claims and which article makes each one, citing it by the title and outlet in its block's header, then explain what the difference is about.
If the reports are consistent, say that no contradictions were found and summarize the points they agree on in one short paragraph.`,
}

// buildPrompt renders the instruction for task around the context block.
func buildPrompt(task models.Task, contextBlock, query string) ai.Prompt {
	instruction, ok := instructions[task]
	if !ok {
		instruction = instructions[models.TaskReport]
	}
	return ai.Prompt{
		System: systemPrompt,
		User:   fmt.Sprintf("%s\n\nCONTEXT:\n%s\n\nQUERY:\n%s\n\nANSWER:", instruction, contextBlock, query),
	}
}
