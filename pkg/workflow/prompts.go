package workflow

import (
	"fmt"
	"strings"

	"github.com/cadenlabs/agentbench/pkg/directory"
)

// chosenCandidate is the structured disambiguation answer.
type chosenCandidate struct {
	Name string `json:"name" jsonschema:"description=The most relevant contact name for the request taken verbatim from the candidate list, or \"none\" if no candidate fits"`
}

// formatContacts renders a candidate list for a prompt.
func formatContacts(contacts []directory.Contact) string {
	var b strings.Builder
	for _, c := range contacts {
		fmt.Fprintf(&b, "- %s, %s, %s <%s>\n", c.Name, c.Role, c.Department, c.Email)
	}
	return strings.TrimRight(b.String(), "\n")
}

func disambiguationPrompt(instruction string, candidates []directory.Contact) string {
	return fmt.Sprintf(`You are an expert in contextual reasoning and corporate organizational analysis.
Analyze the user request and the candidate list to identify the single most relevant person.

Principles:
- Prioritize exact or close matches between role/department and the task
- Consider hierarchical level for decision-making tasks
- Use contextual understanding of the request intent
- Only select from the given candidates; answer "none" if no candidate fits

### USER REQUEST:
%s

### CANDIDATES:
%s`, instruction, formatContacts(candidates))
}

func emailPrompt(contact directory.Contact, instruction string) string {
	return fmt.Sprintf(`Write a professional email to %s (%s).
The topic of the email is: %s.
Maintain a formal tone. Provide a clear subject line and closing.

**To:** <Email of the recipient>
**Subject:** <Subject of the email>
**Body:** <Body of the email and closing>`, contact.Name, contact.Email, instruction)
}

func researchPrompt(query string) string {
	return fmt.Sprintf(`You are a research agent. Analyze this query and provide relevant context,
background information, and key facts. Be thorough but concise.

Query: %s

Provide your research findings:`, query)
}

func reasoningPrompt(query, research string) string {
	return fmt.Sprintf(`You are a reasoning agent. Based on the research findings, provide
a structured analysis with conclusions and recommended actions.

Original Query: %s
Research Findings: %s

Provide your analysis:`, query, orNA(research))
}

func actionPrompt(query, reasoning string) string {
	return fmt.Sprintf(`You are an action agent. Based on the analysis, describe the
concrete actions taken and their outcomes.

Original Query: %s
Analysis: %s

Describe actions executed:`, query, orNA(reasoning))
}

func synthesisPrompt(query, research, reasoning, action string) string {
	return fmt.Sprintf(`Synthesize these multi-agent results into a comprehensive final answer.
If a phase result is N/A, note in your response that its output is missing.

Query: %s
Research: %s
Analysis: %s
Actions: %s

Provide a comprehensive final response:`, query, orNA(research), orNA(reasoning), orNA(action))
}

// orNA substitutes the marker a missing phase output is reported as.
func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func answerPrompt(query, documentContext string, prev *IterationRecord) string {
	var context string
	if documentContext != "" {
		context = fmt.Sprintf("\n\nDocument Context:\n%s", documentContext)
	}

	var history string
	if prev != nil {
		history = fmt.Sprintf(`

Previous attempt:
- Query: %s
- Answer: %s
- Feedback: %s

Improve upon the previous answer using the feedback above.`, prev.Query, prev.Answer, prev.SuggestedRewrite)
	}

	return fmt.Sprintf(`Answer the following query thoroughly and accurately.%s%s

Query: %s

Provide a comprehensive, well-structured answer:`, context, history, query)
}

func evaluatePrompt(originalQuery, currentQuery, answer string, targetConfidence float64) string {
	return fmt.Sprintf(`Evaluate the quality of this answer.

Original Query: %s
Current Query: %s
Answer: %s

Rate the confidence (0-1) based on:
- Completeness: Does it fully address the query?
- Accuracy: Is the information correct and well-supported?
- Clarity: Is the answer clear and well-structured?
- Relevance: Does it directly address what was asked?

If confidence is below %.2f, suggest how to rewrite the query for better results.`, originalQuery, currentQuery, answer, targetConfidence)
}

// refineQuery produces the next iteration's query. The evaluator's rewrite
// wins when present; otherwise the original query is broadened with a
// generic elaboration request.
func refineQuery(originalQuery, rewrite string) string {
	rewrite = strings.TrimSpace(rewrite)
	if rewrite != "" {
		return rewrite
	}
	return fmt.Sprintf("%s Explain step by step, covering background, specifics, and concrete examples.", originalQuery)
}
