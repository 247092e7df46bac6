package model

import "time"

// Scope is the briefing scope snapshot for one run: which sector,
// tickers, and authors the analyst covers. Not mutable at runtime.
type Scope struct {
	PrimarySector    string              `yaml:"primary_sector" mapstructure:"primary_sector"`
	Subtopics        []string            `yaml:"subtopics" mapstructure:"subtopics"`
	PrimaryTickers   []string            `yaml:"primary_tickers" mapstructure:"primary_tickers"`
	WatchlistTickers []string            `yaml:"watchlist_tickers" mapstructure:"watchlist_tickers"`
	TrustedAnalysts  map[string][]string `yaml:"trusted_analysts" mapstructure:"trusted_analysts"` // source -> authors
	// Credibility reflects analytical rigor and data access, not
	// directional accuracy. Fixed table, never learned.
	Credibility map[string]float64 `yaml:"credibility" mapstructure:"credibility"`
}

// AllTickers returns the deduplicated union of primary and watchlist tickers
func (s Scope) AllTickers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{s.PrimaryTickers, s.WatchlistTickers} {
		for _, t := range group {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Tracked reports whether ticker is in the whitelist
func (s Scope) Tracked(ticker string) bool {
	for _, t := range s.PrimaryTickers {
		if t == ticker {
			return true
		}
	}
	for _, t := range s.WatchlistTickers {
		if t == ticker {
			return true
		}
	}
	return false
}

// SourceCredibility returns the credibility score for a source key,
// falling back to the "unknown" entry
func (s Scope) SourceCredibility(source string) float64 {
	if v, ok := s.Credibility[source]; ok {
		return v
	}
	if v, ok := s.Credibility["unknown"]; ok {
		return v
	}
	return 0.3
}

// LLMConfig holds provider configuration shared by all LLM stages
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai | anthropic | ollama | ""
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"-"` // from env only, never persisted
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	// RequestsPerMinute paces calls so a large document set does not
	// trip provider rate limits. 0 disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// CollectConfig configures the source fan-out
type CollectConfig struct {
	Feeds      []FeedConfig  `yaml:"feeds" mapstructure:"feeds"`
	InboxDir   string        `yaml:"inbox_dir" mapstructure:"inbox_dir"` // normalized Document JSON drop dir
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxWorkers int           `yaml:"max_workers" mapstructure:"max_workers"`
}

// FeedConfig describes one RSS/Atom source
type FeedConfig struct {
	Name       string     `yaml:"name" mapstructure:"name"`
	URL        string     `yaml:"url" mapstructure:"url"`
	SourceType SourceType `yaml:"source_type" mapstructure:"source_type"`
}

// TriageConfig holds the deterministic relevance policy
type TriageConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	MaxChunks int     `yaml:"max_chunks" mapstructure:"max_chunks"`
}

// BriefingConfig bounds the rendered output
type BriefingConfig struct {
	// MaxClaimsPerTicker caps regular claims per ticker; high-alert
	// claims always bypass the cap. 0 disables the cap.
	MaxClaimsPerTicker int `yaml:"max_claims_per_ticker" mapstructure:"max_claims_per_ticker"`
	MaxWords           int `yaml:"max_words" mapstructure:"max_words"`
	// MinClaims marks the briefing as thin (not an error) when fewer
	// claims survive filtering.
	MinClaims int    `yaml:"min_claims" mapstructure:"min_claims"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// DriftConfig controls the lookback policy
type DriftConfig struct {
	LookbackDays int `yaml:"lookback_days" mapstructure:"lookback_days"`
	// ComparePeriods additionally compares the same calendar point in
	// the last N lookback periods. 0 compares only the most recent window.
	ComparePeriods int `yaml:"compare_periods" mapstructure:"compare_periods"`
}

// CacheConfig controls the LLM response cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// Config is the full run configuration
type Config struct {
	Scope       Scope          `yaml:"scope" mapstructure:"scope"`
	LLM         LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Collect     CollectConfig  `yaml:"collect" mapstructure:"collect"`
	Triage      TriageConfig   `yaml:"triage" mapstructure:"triage"`
	Briefing    BriefingConfig `yaml:"briefing" mapstructure:"briefing"`
	Drift       DriftConfig    `yaml:"drift" mapstructure:"drift"`
	Cache       CacheConfig    `yaml:"cache" mapstructure:"cache"`
	HistoryPath string         `yaml:"history_path" mapstructure:"history_path"`
	Verbose     bool           `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the TMT coverage defaults
func DefaultConfig() *Config {
	return &Config{
		Scope: Scope{
			PrimarySector: "TMT",
			Subtopics: []string{
				"cloud_enterprise_software",
				"internet_digital_advertising",
				"semiconductors_hardware",
				"telecom_infrastructure",
				"consumer_internet_media",
			},
			PrimaryTickers: []string{
				"META", "GOOGL", "AMZN", "AAPL", "BABA",
				"MSFT", "CRWD", "ZS", "PANW", "NET", "DDOG", "SNOW", "MDB",
			},
			WatchlistTickers: []string{
				"NFLX", "SPOT", "U", "APP", "RBLX", "ORCL", "PLTR", "SHOP",
			},
			TrustedAnalysts: map[string][]string{
				"jefferies": {"Brent Thill", "Joseph Gallo"},
			},
			Credibility: map[string]float64{
				"jefferies":      0.8,
				"jpmorgan":       0.8,
				"morgan_stanley": 0.8,
				"goldman":        0.8,
				"bernstein":      0.8,
				"bofa":           0.75,
				"citi":           0.75,
				"ubs":            0.75,
				"barclays":       0.75,
				"substack":       0.75,
				"podcast":        0.65,
				"unknown":        0.3,
			},
		},
		LLM: LLMConfig{
			Provider:          "",
			Timeout:           30,
			MaxTokens:         500,
			RequestsPerMinute: 60,
		},
		Collect: CollectConfig{
			InboxDir:   "data/inbox",
			Timeout:    2 * time.Minute,
			UserAgent:  "driftbrief/0.3 (+https://github.com/nkarev/driftbrief)",
			MaxWorkers: 4,
		},
		Triage: TriageConfig{
			Threshold: 0.7,
			MaxChunks: 50,
		},
		Briefing: BriefingConfig{
			MaxClaimsPerTicker: 3,
			MaxWords:           2500, // ~5 pages at 500 words/page
			MinClaims:          3,
			OutputDir:          "data/briefings",
		},
		Drift: DriftConfig{
			LookbackDays:   7,
			ComparePeriods: 0,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "data/cache",
			TTL:     72 * time.Hour,
		},
		HistoryPath: "data/claim_history.db",
	}
}

// Validate checks for configuration errors that must abort the run
// before any processing
func (c *Config) Validate() error {
	if len(c.Scope.AllTickers()) == 0 {
		return ErrNoTickers
	}
	if c.LLM.Provider != "" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
