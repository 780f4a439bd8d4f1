// Package prompts builds the coach prompts for each conversation stage and
// parses the model's JSON replies.
package prompts

import (
	"fmt"
	"strings"
)

// SystemPrompt frames every conversation call.
const SystemPrompt = `You are Mira, a warm, compassionate CBT journaling coach inside an app called Dear Teddy. You are not a therapist and never diagnose. You always answer with a single JSON object and nothing else.`

// CopingSystemPrompt frames coping statement requests, which return plain text.
const CopingSystemPrompt = `You are a CBT therapist specializing in anxiety. Generate brief coping statements.`

// InitialInput is what the first analysis of an entry sees.
type InitialInput struct {
	Content      string
	AnxietyLevel int
	// RecurringPatterns are thought patterns seen in the user's earlier entries.
	RecurringPatterns []string
}

// FollowupInput is the conversation up to the user's first reflection.
type FollowupInput struct {
	Content        string
	AnxietyLevel   int
	InitialInsight string
	Reflection     string
}

// ClosingInput is the full conversation up to the user's second reflection.
type ClosingInput struct {
	Content          string
	AnxietyLevel     int
	InitialInsight   string
	Reflection       string
	FollowupInsight  string
	SecondReflection string
}

// BuildInitialPrompt asks for an insight, a reflection question and any thought patterns.
func BuildInitialPrompt(in InitialInput) string {
	var b strings.Builder

	b.WriteString("## JOURNAL ENTRY:\n")
	writeQuoted(&b, in.Content)
	fmt.Fprintf(&b, "Self-reported anxiety level: %d/10\n\n", in.AnxietyLevel)

	if len(in.RecurringPatterns) > 0 {
		b.WriteString("## RECURRING PATTERNS:\n")
		b.WriteString("In earlier entries this person has shown these thought patterns: ")
		b.WriteString(strings.Join(in.RecurringPatterns, ", "))
		b.WriteString(". Gently mention a connection if one is clearly present, without overemphasizing it.\n\n")
	}

	b.WriteString(`## YOUR TASK:
1. Validate specific emotions by naming them precisely (e.g. "neglected", "anxious", "unimportant") rather than using general statements.
2. Identify cognitive distortions with depth, connecting them to underlying emotional needs such as safety, validation or connection.
3. Offer a practical, actionable step the person can apply directly.
4. Close with a single, focused reflection question that starts with "Take a moment. ".

## TONE:
- Warm, empathetic and professional yet conversational.
- Specific and personalized, never vague reassurance.
- Balance validation with gentle challenge.

You may use "## " headers, **bold** and "• " bullets inside insight_text.

IMPORTANT: Respond with ONLY valid JSON in exactly this format, with no text outside the JSON object:
{
  "insight_text": "Your empathetic response that names specific emotions and offers a gentle reframe",
  "reflection_prompt": "Take a moment. A single question exploring their emotional needs",
  "thought_patterns": [
    {"pattern": "Name of the cognitive distortion", "description": "How it shows up in this entry", "recommendation": "A CBT strategy to work with it"}
  ]
}
thought_patterns may be an empty array when no distortion is present.`)

	return b.String()
}

// BuildFollowupPrompt asks for a deeper response to the user's first reflection.
func BuildFollowupPrompt(in FollowupInput) string {
	var b strings.Builder

	b.WriteString("You've already responded to a journal entry with an emotional insight and a reflection prompt. The user has now shared their answer.\n\n")
	b.WriteString("Original journal entry:\n")
	writeQuoted(&b, in.Content)
	fmt.Fprintf(&b, "Self-reported anxiety level: %d/10\n\n", in.AnxietyLevel)
	b.WriteString("Your earlier insight:\n")
	writeQuoted(&b, in.InitialInsight)
	b.WriteString("User's reflection:\n")
	writeQuoted(&b, in.Reflection)

	b.WriteString(`Based on both the original entry and the user's reflection, respond in a way that helps them explore their emotion, reframe their thinking, or consider a next step.
Do not repeat previous reflections. Stay grounded in their reply. Keep it concise (2-4 sentences), warm, and end with one gentle question they can sit with.

Return your response as JSON in exactly this format:
{
  "followup_text": "Your thoughtful, empathetic response that builds on their reflection"
}`)

	return b.String()
}

// BuildClosingPrompt asks for a validating close to the conversation with one action step.
func BuildClosingPrompt(in ClosingInput) string {
	var b strings.Builder

	b.WriteString("The conversation has progressed through several reflections.\n\n")
	b.WriteString("Original journal entry:\n")
	writeQuoted(&b, in.Content)
	fmt.Fprintf(&b, "Self-reported anxiety level: %d/10\n\n", in.AnxietyLevel)
	b.WriteString("Your first insight:\n")
	writeQuoted(&b, in.InitialInsight)
	b.WriteString("First reflection:\n")
	writeQuoted(&b, in.Reflection)
	b.WriteString("Your follow-up:\n")
	writeQuoted(&b, in.FollowupInsight)
	b.WriteString("Second reflection:\n")
	writeQuoted(&b, in.SecondReflection)

	b.WriteString(`Offer a warm, validating response that acknowledges what they have discovered across this conversation, then give one specific action step they can take today. This is the last message of the conversation, so do not ask another question.

Return your response as JSON in exactly this format:
{
  "closing_message": "Your warm closing response with a specific action step"
}`)

	return b.String()
}

// BuildPatternPrompt asks only for the thought patterns present in an entry.
func BuildPatternPrompt(content string, anxietyLevel int) string {
	var b strings.Builder

	b.WriteString("Identify the cognitive distortions present in this journal entry.\n\n")
	writeQuoted(&b, content)
	fmt.Fprintf(&b, "Self-reported anxiety level: %d/10\n\n", anxietyLevel)
	b.WriteString(`List at most three thought patterns. Use common CBT names such as "All-or-nothing thinking", "Catastrophizing" or "Mind reading".

Return your response as JSON in exactly this format:
{
  "thought_patterns": [
    {"pattern": "Name of the cognitive distortion", "description": "How it shows up in this entry", "recommendation": "A CBT strategy to work with it"}
  ]
}
Use an empty array when no distortion is present.`)

	return b.String()
}

// BuildCopingPrompt asks for a one or two sentence coping statement as plain text.
func BuildCopingPrompt(anxietyContext string) string {
	var b strings.Builder

	b.WriteString("Create a short, personalized coping statement for someone experiencing anxiety about:\n\n")
	writeQuoted(&b, anxietyContext)
	b.WriteString(`The statement should be:
1. Brief (1-2 sentences)
2. Empowering
3. Based on CBT principles
4. Present-focused
5. Realistic and grounding

Return only the statement text, no quotation marks or additional commentary.`)

	return b.String()
}

func writeQuoted(b *strings.Builder, text string) {
	b.WriteString(`"""`)
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(strings.ReplaceAll(text, `"""`, `"`)))
	b.WriteString("\n")
	b.WriteString(`"""`)
	b.WriteString("\n\n")
}
