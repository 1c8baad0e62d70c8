package detect

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// InjectionPattern is one row of the data-driven injection table. Patterns
// are tested in table order against every string-valued field; the first
// match wins.
type InjectionPattern struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`

	re *regexp.Regexp
}

// Rules holds the heuristic vocabularies. The defaults mirror the production
// tables; a YAML file can replace any individual list.
type Rules struct {
	HeadlessMarkers []string           `yaml:"headlessMarkers"`
	KnownBots       []string           `yaml:"knownBots"`
	HoneypotFields  []string           `yaml:"honeypotFields"`
	Injection       []InjectionPattern `yaml:"injection"`
}

// DefaultRules returns the built-in vocabularies, already compiled.
func DefaultRules() *Rules {
	r := &Rules{
		HeadlessMarkers: []string{
			"headless", "phantomjs", "puppeteer", "selenium", "webdriver",
			"chrome-headless", "playwright", "jsdom", "nightmare", "zombie",
		},
		KnownBots: []string{
			// Search engine and social crawlers.
			"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
			"yandexbot", "facebookexternalhit", "twitterbot", "linkedinbot",
			"whatsapp", "telegrambot", "slackbot", "discordbot",
			// Generic scripting tools.
			"curl", "wget", "python-requests", "bot", "crawler", "spider", "scraper",
		},
		HoneypotFields: []string{"website", "email2", "phone2"},
		Injection: []InjectionPattern{
			{Pattern: `('|--|;|\||\*)`, Category: "quote_meta"},
			{Pattern: `(?i)(union|select|insert|update|delete|drop|create|alter|exec|execute)`, Category: "sql_keyword"},
			{Pattern: `(?i)(script|javascript|vbscript|onload|onerror|onclick)`, Category: "script_marker"},
			{Pattern: `(?i)(or\s+1\s*=\s*1|and\s+1\s*=\s*1)`, Category: "boolean_tautology"},
			{Pattern: `(?i)(or\s+'\w+'\s*=\s*'\w+'|and\s+'\w+'\s*=\s*'\w+')`, Category: "quoted_tautology"},
			{Pattern: `(?i)(\bor\b|\band\b)\s+(true|false)`, Category: "boolean_literal"},
			{Pattern: `(?i)(xp_|sp_|0x)`, Category: "system_probe"},
			{Pattern: `(?i)(information_schema|sysobjects|syscolumns)`, Category: "schema_probe"},
		},
	}
	if err := r.compile(); err != nil {
		// Built-in patterns are fixed; a failure here is a programming error.
		panic(err)
	}
	return r
}

// LoadRules reads a YAML rules file and overlays it on the defaults. Lists
// absent from the file keep their built-in values.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var loaded Rules
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	r := DefaultRules()
	if len(loaded.HeadlessMarkers) > 0 {
		r.HeadlessMarkers = loaded.HeadlessMarkers
	}
	if len(loaded.KnownBots) > 0 {
		r.KnownBots = loaded.KnownBots
	}
	if len(loaded.HoneypotFields) > 0 {
		r.HoneypotFields = loaded.HoneypotFields
	}
	if len(loaded.Injection) > 0 {
		r.Injection = loaded.Injection
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rules) compile() error {
	for i := range r.Injection {
		re, err := regexp.Compile(r.Injection[i].Pattern)
		if err != nil {
			return fmt.Errorf("injection pattern %q: %w", r.Injection[i].Pattern, err)
		}
		r.Injection[i].re = re
	}
	return nil
}
