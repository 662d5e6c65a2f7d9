package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func testVars() *Vars {
	return &Vars{
		JobID:         "job-1",
		JobName:       "nightly-report",
		ExecutionID:   "exec-1",
		ScheduledTime: time.Date(2026, 1, 2, 2, 0, 0, 0, time.UTC),
		Attempt:       2,
		Env:           map[string]string{"TOKEN": "secret"},
	}
}

func TestRender(t *testing.T) {
	vars := testVars()

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"no template", "Plain text", "Plain text"},
		{"execution id", "{{ .ExecutionID }}", "exec-1"},
		{"job name", "job={{ .JobName }}", "job=nightly-report"},
		{"attempt", "attempt {{ .Attempt }}", "attempt 2"},
		{"date", `{{ date "2006-01-02" .ScheduledTime }}`, "2026-01-02"},
		{"unix", "{{ unix .ScheduledTime }}", "1767319200"},
		{"shift", `{{ date "2006-01-02" (shift "-24h" .ScheduledTime) }}`, "2026-01-01"},
		{"env", "Bearer {{ .Env.TOKEN }}", "Bearer secret"},
		{"env helper", `{{ env "TOKEN" }}`, "secret"},
		{"default", `{{ default "none" (env "MISSING") }}`, "none"},
		{"default piped", `{{ env "MISSING" | default "none" }}`, "none"},
		{"upper", "{{ upper .JobName }}", "NIGHTLY-REPORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_Errors(t *testing.T) {
	vars := testVars()

	if _, err := Render("{{ .Unknown }}", vars); !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender, got %v", err)
	}
	if _, err := Render("{{ .JobName ", vars); !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
	if _, err := Render(`{{ shift "soon" .ScheduledTime }}`, vars); !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender for bad duration, got %v", err)
	}
}

func TestRender_MissingEnvIsError(t *testing.T) {
	out, err := Render("Bearer {{ .Env.TOKEN }}", &Vars{Env: map[string]string{}})
	if !errors.Is(err, ErrTemplateRender) {
		t.Fatalf("expected ErrTemplateRender, got out=%q err=%v", out, err)
	}

	if _, err := Render("Bearer {{ .Env.TOKEN }}", &Vars{}); !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender for nil env, got %v", err)
	}
}

func TestConfig_MissingEnvIsError(t *testing.T) {
	raw := json.RawMessage(`{"url":"https://x/y","method":"GET","headers":{"Authorization":"Bearer {{ .Env.TOKEN }}"}}`)

	out, err := Config(raw, &Vars{Env: map[string]string{}})
	if !errors.Is(err, ErrTemplateRender) {
		t.Fatalf("expected ErrTemplateRender, got out=%s err=%v", out, err)
	}
	if strings.Contains(err.Error(), "<no value>") {
		t.Errorf("error should not carry a rendered placeholder: %v", err)
	}
}

func TestConfig_Unchanged(t *testing.T) {
	raw := json.RawMessage(`{"url": "https://x/y",  "method": "GET"}`)

	out, err := Config(raw, testVars())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("config without templates should be returned as is, got %s", out)
	}
}

func TestConfig_Nested(t *testing.T) {
	raw := json.RawMessage(`{
		"url": "https://x/report/{{ .JobName }}",
		"method": "POST",
		"headers": {"Idempotency-Key": "{{ .ExecutionID }}"},
		"params": {"day": "{{ date \"2006-01-02\" .ScheduledTime }}", "page": 12345678901234567},
		"data": {"tags": ["a", "{{ .Attempt }}"], "flag": true}
	}`)

	out, err := Config(raw, testVars())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Params  map[string]any    `json:"params"`
		Data    struct {
			Tags []string `json:"tags"`
			Flag bool     `json:"flag"`
		} `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("decode rendered config: %v", err)
	}

	if got.URL != "https://x/report/nightly-report" {
		t.Errorf("url: got %q", got.URL)
	}
	if got.Headers["Idempotency-Key"] != "exec-1" {
		t.Errorf("header: got %q", got.Headers["Idempotency-Key"])
	}
	if got.Params["day"] != "2026-01-02" {
		t.Errorf("params.day: got %v", got.Params["day"])
	}
	if got.Params["page"] != json.Number("12345678901234567") {
		t.Errorf("large numbers must survive rendering, got %v", got.Params["page"])
	}
	if len(got.Data.Tags) != 2 || got.Data.Tags[1] != "2" || !got.Data.Flag {
		t.Errorf("data: got %+v", got.Data)
	}
}

func TestConfig_ErrorNamesField(t *testing.T) {
	raw := json.RawMessage(`{"headers": {"X-Key": "{{ .Nope }}"}}`)

	_, err := Config(raw, testVars())
	if !errors.Is(err, ErrTemplateRender) {
		t.Fatalf("expected ErrTemplateRender, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "headers: X-Key: ") {
		t.Errorf("error should name the field path, got %q", err.Error())
	}
}

func TestEnvFromOS(t *testing.T) {
	t.Setenv(EnvPrefix+"REPORT_TOKEN", "abc")
	t.Setenv("UNRELATED_SECRET", "nope")

	env := EnvFromOS()
	if env["REPORT_TOKEN"] != "abc" {
		t.Errorf("expected REPORT_TOKEN=abc, got %q", env["REPORT_TOKEN"])
	}
	if _, ok := env["UNRELATED_SECRET"]; ok {
		t.Error("variables without prefix must not be exposed")
	}
}
