package completion

import (
	"fmt"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/envelope"
)

type promptBuilder func(env *envelope.Envelope) (system, user string)

var builders = map[envelope.Kind]promptBuilder{
	envelope.KindExecute: executePrompt,
	envelope.KindChat:    chatPrompt,
	envelope.KindAnalyze: analyzePrompt,
}

func executePrompt(env *envelope.Envelope) (string, string) {
	if env.Instruction != "" {
		return "", env.Instruction
	}
	return "", fmt.Sprintf("Execute this %s code and return the result:\n\n%s", env.Language, fence(env.Language, env.Text))
}

// chatPrompt keeps the system instruction out of the user turn.
func chatPrompt(env *envelope.Envelope) (string, string) {
	return env.Instruction, env.Text
}

func analyzePrompt(env *envelope.Envelope) (string, string) {
	return "", fmt.Sprintf("Analyze this %s code for bugs, security issues, performance improvements, and best practices:\n\n%s\n\nProvide specific, actionable feedback.",
		env.Language, fence(env.Language, env.Text))
}

func fence(language, code string) string {
	return "```" + language + "\n" + code + "\n```"
}
