package model

import "github.com/m-mizutani/goerr/v2"

const (
	// DefaultHistoryLimit is how many recent conversation turns feed the
	// classifier and agent prompts
	DefaultHistoryLimit = 10
	// DefaultAgentLoopLimit bounds how many reasoning/tool steps the
	// answering agent may take per question
	DefaultAgentLoopLimit = 4
)

// Profile is the assistant's tunable personality and limits. It is loaded
// from an optional TOML file; zero values fall back to defaults.
type Profile struct {
	Persona        string `toml:"persona"`
	FallbackAnswer string `toml:"fallback_answer"`
	FailureMessage string `toml:"failure_message"`
	HistoryLimit   int    `toml:"history_limit"`
	AgentLoopLimit int    `toml:"agent_loop_limit"`
}

// DefaultProfile returns the built-in profile used when no file is given
func DefaultProfile() *Profile {
	return &Profile{
		Persona:        "You are a personal capture-and-recall assistant. You help the user save notes and media, and answer questions from what they saved. Be concise and factual.",
		FallbackAnswer: "I couldn't find a reliable answer in your saved records. Could you rephrase, or add more detail?",
		FailureMessage: "Sorry, something went wrong while handling your message. Please try again.",
		HistoryLimit:   DefaultHistoryLimit,
		AgentLoopLimit: DefaultAgentLoopLimit,
	}
}

// Normalize fills zero values with defaults and validates the rest
func (p *Profile) Normalize() error {
	def := DefaultProfile()

	if p.Persona == "" {
		p.Persona = def.Persona
	}
	if p.FallbackAnswer == "" {
		p.FallbackAnswer = def.FallbackAnswer
	}
	if p.FailureMessage == "" {
		p.FailureMessage = def.FailureMessage
	}
	if p.HistoryLimit == 0 {
		p.HistoryLimit = def.HistoryLimit
	}
	if p.AgentLoopLimit == 0 {
		p.AgentLoopLimit = def.AgentLoopLimit
	}

	if p.HistoryLimit < 0 {
		return goerr.New("history_limit must not be negative", goerr.V("value", p.HistoryLimit))
	}
	if p.AgentLoopLimit < 1 {
		return goerr.New("agent_loop_limit must be at least 1", goerr.V("value", p.AgentLoopLimit))
	}

	return nil
}
