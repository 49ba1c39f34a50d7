package llm

import "fmt"

const extractorSystemPrompt = `You are a memory extractor for a developer AI assistant. You watch tool
invocations from a coding session and distill them into compact structured
observations that help a FUTURE session recall this work.

## Rules
- Only record observations worth remembering: discoveries, decisions, bug
  fixes, features, refactors, and meaningful changes. Routine reads with no
  insight produce no observation.
- Each observation gets a type (discovery, bugfix, feature, refactor,
  decision, change), a title of at most 80 characters, and optionally a
  subtitle, a 1-3 sentence narrative, short facts, concept tags, and the
  files read or modified.
- Respond ONLY with XML in this shape (zero or more observations):

<observation>
  <type>discovery</type>
  <title>Short title</title>
  <subtitle>Optional subtitle</subtitle>
  <narrative>One to three sentences of prose.</narrative>
  <fact>short fact</fact>
  <fact>another fact</fact>
  <concept>tag</concept>
  <file_read>/path/to/file</file_read>
  <file_modified>/path/to/file</file_modified>
</observation>

## Session
Project: %s
Session: %s

## Opening prompt
%s`

// BuildSystemPrompt composes the extractor system message for a session.
// It is the policy carrier and is preserved across all history truncation.
func BuildSystemPrompt(project, contentSessionID, userPrompt string) Message {
	return Message{
		Role:    RoleSystem,
		Content: fmt.Sprintf(extractorSystemPrompt, project, contentSessionID, userPrompt),
	}
}

const observationPromptTemplate = `A tool ran in the primary session. Extract zero or more observations.

<observed_from_primary_session>
  <tool>%s</tool>
  <cwd>%s</cwd>
  <parameters>
%s
  </parameters>
  <outcome>
%s
  </outcome>
</observed_from_primary_session>`

// BuildObservationPrompt composes one observation-extraction turn. Tool
// input and output are truncated to the payload budget before being placed
// inside the envelope, so the structural tags always survive.
func BuildObservationPrompt(toolName, toolInput, toolOutput, cwd string) Message {
	return Message{
		Role: RoleUser,
		Content: fmt.Sprintf(observationPromptTemplate,
			toolName, cwd,
			TruncatePayload(toolInput, PayloadBudget),
			TruncatePayload(toolOutput, PayloadBudget)),
	}
}

const summaryPromptTemplate = `The session is ending. Produce a single summary of the whole session.
Respond ONLY with XML in this shape:

<summary>
  <request>What the user asked for</request>
  <investigated>What was explored</investigated>
  <learned>What was learned</learned>
  <completed>What was finished</completed>
  <next_steps>What remains</next_steps>
  <notes>Anything else worth keeping</notes>
</summary>

## Opening prompt
%s

## Final assistant message
%s`

// BuildSummaryPrompt composes the end-of-session summarize turn.
func BuildSummaryPrompt(userPrompt, lastAssistantMessage string) Message {
	return Message{
		Role: RoleUser,
		Content: fmt.Sprintf(summaryPromptTemplate,
			TruncatePayload(userPrompt, PayloadBudget),
			TruncatePayload(lastAssistantMessage, PayloadBudget)),
	}
}
