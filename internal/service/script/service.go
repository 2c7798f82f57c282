package script

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/config"
	"github.com/zhouzirui/tavus-echo/backend/internal/model/persona"
)

// MaxLineLength caps a suggested line, in characters.
const MaxLineLength = 280

const defaultTopic = "a short friendly greeting to the viewer"

// ErrEmptySuggestion is returned when the model produced nothing usable.
var ErrEmptySuggestion = errors.New("model returned an empty line")

// Service suggests a single spoken line for the avatar to echo.
type Service struct {
	profile persona.Profile
	chain   compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the suggester on the configured Ark chat model.
func NewService(ctx context.Context, cfg config.AIConfig, profile persona.Profile) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}
	return NewWithModel(ctx, chatModel, profile)
}

// NewWithModel builds the suggester on any chat model.
func NewWithModel(ctx context.Context, chatModel model.BaseChatModel, profile persona.Profile) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{topic}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile script chain")
	}

	return &Service{profile: profile, chain: runnable}, nil
}

// Suggest asks the model for one line about topic. The result is trimmed and capped.
func (s *Service) Suggest(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = defaultTopic
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": s.systemPrompt(),
		"topic":  "Topic: " + topic,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to run script chain")
	}

	line := CleanLine(response.Content)
	if line == "" {
		return "", ErrEmptySuggestion
	}

	log.Info().Int("chars", utf8.RuneCountInString(line)).Msg("script line suggested")
	return line, nil
}

func (s *Service) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You write one line for a video avatar to say out loud. ")
	b.WriteString("Reply with the line only: no quotes, no stage directions, no lists, at most two sentences and under 280 characters.")
	if s.profile.OpeningLine != "" {
		b.WriteString("\nMatch the tone of this example line: ")
		b.WriteString(s.profile.OpeningLine)
	}
	return b.String()
}

// CleanLine flattens whitespace, strips wrapping quotes and caps the length.
func CleanLine(raw string) string {
	line := strings.Join(strings.Fields(raw), " ")
	line = strings.Trim(line, "\"'“”‘’` ")
	line = strings.TrimSpace(line)

	if utf8.RuneCountInString(line) > MaxLineLength {
		runes := []rune(line)
		line = strings.TrimSpace(string(runes[:MaxLineLength]))
	}
	return line
}
