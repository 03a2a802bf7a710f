// Package persona generates the replies a creator's AI chat agent sends to fans. The persona
// text is data loaded from a YAML file; the generator behind it is swappable.
package persona

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"nudfans-backend/apperrors"
	"nudfans-backend/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation replayed to the generator.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Persona is the voice of the agent. SystemPrompt may use {{creator}} and {{display_name}}.
type Persona struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	Temperature  float64  `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	HistoryLimit int      `yaml:"history_limit"`
	Fallbacks    []string `yaml:"fallbacks"`
}

// For fills the placeholders for one creator.
func (p Persona) For(username, displayName string) Persona {
	if displayName == "" {
		displayName = username
	}
	r := strings.NewReplacer("{{creator}}", username, "{{display_name}}", displayName)
	out := p
	out.SystemPrompt = r.Replace(p.SystemPrompt)
	out.Fallbacks = make([]string, len(p.Fallbacks))
	for i, f := range p.Fallbacks {
		out.Fallbacks[i] = r.Replace(f)
	}
	return out
}

// Default is used when no persona file is configured.
func Default() Persona {
	return Persona{
		Name: "default",
		SystemPrompt: "You are {{display_name}} (@{{creator}}), a content creator chatting with a fan. " +
			"Be warm, playful and brief, answer in the fan's language, never claim to be an AI, " +
			"and invite the fan to check out your subscription and exclusive posts when it fits.",
		Temperature:  0.8,
		MaxTokens:    200,
		HistoryLimit: 20,
		Fallbacks: []string{
			"Hey! I just saw your message, give me a moment 😘",
			"Thanks for writing to me! I'll get back to you very soon.",
		},
	}
}

// Load reads a persona file. An empty path returns Default.
func Load(path string) (Persona, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("reading persona file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Persona, error) {
	p := Default()
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Persona{}, fmt.Errorf("parsing persona file: %w", err)
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return Persona{}, errors.New("persona file has no system_prompt")
	}
	if len(p.Fallbacks) == 0 {
		return Persona{}, errors.New("persona file needs at least one fallback reply")
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = Default().HistoryLimit
	}
	return p, nil
}

// Generator produces a reply. Implementations return an LLMUnavailable error on failure.
type Generator interface {
	GenerateReply(ctx context.Context, p Persona, history []Turn, message string) (string, error)
}

// Agent wraps a Generator and never fails: any error turns into one of the persona's
// canned replies.
type Agent struct {
	generator Generator
	timeout   time.Duration
	pick      func(n int) int
}

// NewAgent accepts a nil generator, in which case every reply is canned.
func NewAgent(generator Generator, timeout time.Duration) *Agent {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Agent{generator: generator, timeout: timeout, pick: rand.Intn}
}

// Reply returns the reply text and whether it came from the generator.
func (a *Agent) Reply(ctx context.Context, p Persona, history []Turn, message string) (string, bool) {
	if a.generator != nil {
		if limit := p.HistoryLimit; limit > 0 && len(history) > limit {
			history = history[len(history)-limit:]
		}
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		text, err := a.generator.GenerateReply(ctx, p, history, message)
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			return text, true
		}
		if err == nil {
			err = apperrors.Wrap(apperrors.KindLLMUnavailable, apperrors.ErrLLMUnavailable.Code, "empty reply", nil)
		}
		utils.LogWarn("persona reply fell back to a canned message", logrus.Fields{"persona": p.Name, "error": err.Error()})
	}
	return a.fallback(p), false
}

func (a *Agent) fallback(p Persona) string {
	if len(p.Fallbacks) == 0 {
		return Default().Fallbacks[0]
	}
	return p.Fallbacks[a.pick(len(p.Fallbacks))]
}
