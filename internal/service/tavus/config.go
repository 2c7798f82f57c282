package tavus

import (
	"github.com/zhouzirui/tavus-echo/backend/internal/config"
	"github.com/zhouzirui/tavus-echo/backend/internal/model/persona"
)

// ProfileFromConfig builds the avatar profile used for new conversations.
func ProfileFromConfig(cfg config.TavusConfig, openingLine string) persona.Profile {
	return persona.Profile{
		PersonaID:   cfg.PersonaID,
		ReplicaID:   cfg.ReplicaID,
		NamePrefix:  cfg.ConversationPrefix,
		OpeningLine: openingLine,
	}
}

// NewClientFromConfig builds a client from loaded configuration.
func NewClientFromConfig(cfg config.TavusConfig, profile persona.Profile) *Client {
	return NewClient(Options{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		BroadcastURL: cfg.BroadcastURL,
		Profile:      profile,
		Timeout:      cfg.Timeout,
		EndTimeout:   cfg.EndTimeout,
	})
}
