package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Discord: DiscordConfig{},
		Triage: TriageConfig{
			ResponseDelaySeconds: 300,
			HighThreshold:        0.5,
			LowThreshold:         0.3,
			LookbackLimit:        20,
			SkipPatterns:         defaultSkipPatterns(),
			MaxConcurrent:        5,
		},
		Guard: GuardConfig{
			RateLimitMax:           5,
			RateLimitWindowSeconds: 60,
			MaxMessageLength:       1500,
		},
		Matcher: MatcherConfig{
			SemanticEnabled:  false,
			Model:            "claude-3-5-haiku-20241022",
			MaxContextTokens: 4000,
			MinConfidence:    0.3,
		},
		Knowledge: KnowledgeConfig{
			BasePath: "./knowledge",
		},
		Events: EventsConfig{
			DBPath: "~/.supportbot/events.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
			Port:     9091,
		},
	}
}

// defaultSkipPatterns are informal "a human is on it" markers. A message
// containing one is never auto-answered.
func defaultSkipPatterns() []string {
	return []string{
		"dm you",
		"dmed you",
		"will look",
		"looking into",
		"looking now",
	}
}

// defaultInjectionPatterns are ordered instruction-override probes. The
// first matching pattern wins; all are applied case-insensitively to the
// raw message text.
func defaultInjectionPatterns() []string {
	return []string{
		`ignore\s+(all\s+)?previous\s+instructions`,
		`disregard\s+(all\s+)?(prior|previous)\s+(instructions|prompts)`,
		`you\s+are\s+now\s+a`,
		`forget\s+(everything|your\s+instructions)`,
		`system\s*prompt`,
		`return\s+null\s+for\s+everything`,
		`respond\s+with\s+only`,
		`jailbreak`,
		`\bDAN\s+mode\b`,
	}
}

// Patterns returns the configured injection pattern list or the built-in
// defaults when none is set.
func (g GuardConfig) Patterns() []string {
	if len(g.InjectionPatterns) > 0 {
		return g.InjectionPatterns
	}
	return defaultInjectionPatterns()
}
