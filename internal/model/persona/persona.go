package persona

// Profile captures the avatar identity used when opening conversations.
type Profile struct {
	PersonaID   string `json:"personaId"`
	ReplicaID   string `json:"replicaId"`
	NamePrefix  string `json:"namePrefix"`
	OpeningLine string `json:"openingLine"`
}

// Ready reports whether both remote identifiers are present.
func (p Profile) Ready() bool {
	return p.PersonaID != "" && p.ReplicaID != ""
}

// ConversationPrefix falls back to a stable default when none is configured.
func (p Profile) ConversationPrefix() string {
	if p.NamePrefix == "" {
		return "TAVUS-Echo"
	}
	return p.NamePrefix
}
