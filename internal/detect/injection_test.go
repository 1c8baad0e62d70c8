package detect

import (
	"net/url"
	"os"
	"testing"
)

func TestFindInjectionBody(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name     string
		value    string
		wantHit  bool
		category string
	}{
		{name: "classic tautology", value: "admin' OR '1'='1", wantHit: true, category: "quote_meta"},
		{name: "union select", value: "1 UNION SELECT password FROM users", wantHit: true, category: "sql_keyword"},
		{name: "script tag", value: "<script>alert(1)</script>", wantHit: true, category: "script_marker"},
		{name: "event handler", value: "x onerror=steal()", wantHit: true, category: "script_marker"},
		{name: "numeric tautology", value: "1 or 1=1", wantHit: true, category: "boolean_tautology"},
		{name: "hex probe", value: "0x1f4b", wantHit: true, category: "system_probe"},
		{name: "system table probe", value: "information_schema.tables", wantHit: true, category: "schema_probe"},
		{name: "plain name", value: "Jane Doe", wantHit: false},
		{name: "plain email", value: "jane@example.com", wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, found := rules.FindInjection(map[string]any{"field": tt.value}, nil, nil)
			if found != tt.wantHit {
				t.Fatalf("found = %v, want %v", found, tt.wantHit)
			}
			if found && match.Category != tt.category {
				t.Errorf("category = %q, want %q (first pattern in table order wins)", match.Category, tt.category)
			}
		})
	}
}

func TestFindInjectionOrder(t *testing.T) {
	rules := DefaultRules()

	body := map[string]any{"comment": "hello", "name": "x' OR 'a'='a"}
	query := url.Values{"q": []string{"drop table users"}}

	// Body is checked before query; within the body, key order is stable.
	match, found := rules.FindInjection(body, query, nil)
	if !found {
		t.Fatal("expected a match")
	}
	if match.Field != "name" {
		t.Errorf("field = %q, want %q", match.Field, "name")
	}
}

func TestFindInjectionQueryAndParams(t *testing.T) {
	rules := DefaultRules()

	t.Run("query parameter", func(t *testing.T) {
		match, found := rules.FindInjection(nil, url.Values{"search": []string{"1; DROP TABLE products"}}, nil)
		if !found {
			t.Fatal("expected a match")
		}
		if match.Field != "search" {
			t.Errorf("field = %q, want search", match.Field)
		}
	})

	t.Run("path parameter", func(t *testing.T) {
		match, found := rules.FindInjection(nil, nil, map[string]string{"id": "1 UNION SELECT *"})
		if !found {
			t.Fatal("expected a match")
		}
		if match.Field != "id" {
			t.Errorf("field = %q, want id", match.Field)
		}
	})

	t.Run("non-string body values ignored", func(t *testing.T) {
		_, found := rules.FindInjection(map[string]any{"count": 5.0, "active": true}, nil, nil)
		if found {
			t.Error("non-string values must not match")
		}
	})
}

func TestCheckHoneypot(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name       string
		body       map[string]any
		wantFilled int
	}{
		{name: "nil body", body: nil, wantFilled: 0},
		{name: "clean body", body: map[string]any{"userName": "jane"}, wantFilled: 0},
		{name: "website decoy filled", body: map[string]any{"website": "http://spam.com"}, wantFilled: 1},
		{name: "empty decoy ignored", body: map[string]any{"website": ""}, wantFilled: 0},
		{name: "all decoys filled", body: map[string]any{"website": "x", "email2": "a@b.c", "phone2": "123"}, wantFilled: 3},
		{name: "false decoy ignored", body: map[string]any{"email2": false}, wantFilled: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filled := rules.CheckHoneypot(tt.body)
			if len(filled) != tt.wantFilled {
				t.Errorf("filled = %v, want %d fields", filled, tt.wantFilled)
			}
		})
	}
}

func TestLoadRulesOverlay(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rules.yaml"
	yaml := "honeypotFields:\n  - landmine\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	// Overridden list replaced, untouched lists keep defaults.
	if len(rules.CheckHoneypot(map[string]any{"landmine": "x"})) != 1 {
		t.Error("expected overridden honeypot field to trigger")
	}
	if len(rules.CheckHoneypot(map[string]any{"website": "x"})) != 0 {
		t.Error("default honeypot fields should be replaced")
	}
	if c := rules.ClassifyUserAgent("HeadlessChrome"); c.Reason != ReasonHeadless {
		t.Error("default headless markers should survive an overlay")
	}
}
