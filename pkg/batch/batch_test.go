package batch

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestCustomIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
	}{
		{
			name: "generation request",
			meta: Metadata{
				Type:     KindGeneration,
				RunID:    "run_abc",
				OriginID: "origin-1",
			},
		},
		{
			name: "difficulty request",
			meta: Metadata{
				Type:              KindDifficulty,
				RunID:             "run_abc",
				ComparisonGroupID: "group-1",
				BloomLevel:        "Apply",
				CoherenceLevel:    "hierarchical_l0",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			customID, err := EncodeCustomID(tc.meta)
			if err != nil {
				t.Fatalf("EncodeCustomID() error = %v", err)
			}
			if !strings.HasPrefix(customID, "gr_meta::") {
				t.Errorf("custom_id %q missing metadata prefix", customID)
			}

			got, err := DecodeCustomID(customID)
			if err != nil {
				t.Fatalf("DecodeCustomID() error = %v", err)
			}
			got.Raw = ""
			if got != tc.meta {
				t.Errorf("round trip mismatch:\ngot:  %+v\nwant: %+v", got, tc.meta)
			}
		})
	}
}

func TestDecodeCustomIDWithoutPrefix(t *testing.T) {
	got, err := DecodeCustomID("gen_req_42")
	if err != nil {
		t.Fatalf("DecodeCustomID() error = %v", err)
	}
	if got.Raw != "gen_req_42" {
		t.Errorf("Raw = %q, want original custom_id preserved", got.Raw)
	}
	if got.Type != "" {
		t.Errorf("Type = %q, want empty for plain custom_id", got.Type)
	}
}

func TestDecodeCustomIDMalformedPayload(t *testing.T) {
	got, err := DecodeCustomID("gr_meta::{not json")
	if err == nil {
		t.Fatal("expected an error for malformed metadata payload")
	}
	if got.Raw != "gr_meta::{not json" {
		t.Errorf("Raw = %q, want original custom_id preserved on failure", got.Raw)
	}
}

func TestWriteRequests(t *testing.T) {
	temp := 0.4
	requests := []Request{
		{
			Metadata: Metadata{Type: KindGeneration, RunID: "run_1", OriginID: "o1"},
			Messages: []Message{
				{Role: "system", Content: "You are an education expert."},
				{Role: "user", Content: "Generate knowledge units."},
			},
			Config: RequestConfig{
				Model:          "gpt-4o-mini",
				Temperature:    &temp,
				ResponseFormat: map[string]string{"type": "json_object"},
			},
		},
		{
			Metadata: Metadata{Type: KindGeneration, RunID: "run_1", OriginID: "o2"},
			Messages: []Message{{Role: "user", Content: "Second request."}},
			Config:   RequestConfig{Model: "gpt-4o-mini"},
		},
	}

	var buf bytes.Buffer
	if err := WriteRequests(&buf, requests, ChatEndpoint); err != nil {
		t.Fatalf("WriteRequests() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line is not valid JSON: %v", err)
	}
	if first["method"] != "POST" {
		t.Errorf("method = %v, want POST", first["method"])
	}
	if first["url"] != ChatEndpoint {
		t.Errorf("url = %v, want %v", first["url"], ChatEndpoint)
	}
	body, ok := first["body"].(map[string]any)
	if !ok {
		t.Fatal("first line has no body object")
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", body["model"])
	}
	if body["temperature"] != 0.4 {
		t.Errorf("temperature = %v, want 0.4", body["temperature"])
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("second line is not valid JSON: %v", err)
	}
	secondBody := second["body"].(map[string]any)
	if _, present := secondBody["temperature"]; present {
		t.Error("unset temperature must be omitted from the body")
	}
}

func TestJSONSchemaFormat(t *testing.T) {
	type payload struct {
		GeneratedUnits []struct {
			BloomLevel string `json:"bloom_level"`
			UCText     string `json:"uc_text"`
		} `json:"generated_units"`
	}

	format := JSONSchemaFormat("generated_units", payload{})

	encoded, err := json.Marshal(format)
	if err != nil {
		t.Fatalf("response format must marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "json_schema" {
		t.Errorf("type = %v, want json_schema", decoded["type"])
	}
	inner, ok := decoded["json_schema"].(map[string]any)
	if !ok {
		t.Fatal("missing json_schema object")
	}
	if inner["name"] != "generated_units" {
		t.Errorf("name = %v, want generated_units", inner["name"])
	}
	if inner["strict"] != true {
		t.Errorf("strict = %v, want true", inner["strict"])
	}
	schema, ok := inner["schema"].(map[string]any)
	if !ok {
		t.Fatal("missing schema object")
	}
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema has no properties")
	}
	if _, ok := properties["generated_units"]; !ok {
		t.Error("schema does not describe the generated_units field")
	}
}

func TestParseOutputLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantContent string
		wantErrMsg  string
	}{
		{
			name: "successful response",
			line: `{"id":"l1","custom_id":"gr_meta::{\"type\":\"uc_generation\",\"run_id\":\"r1\",\"origin_id\":\"o1\"}",` +
				`"response":{"status_code":200,"body":{"choices":[{"message":{"content":"{\"generated_units\":[]}"}}]}}}`,
			wantContent: `{"generated_units":[]}`,
		},
		{
			name:       "provider error payload",
			line:       `{"id":"l2","custom_id":"gr_meta::{\"type\":\"uc_generation\",\"run_id\":\"r1\"}","error":{"code":"rate_limit","message":"slow down"}}`,
			wantErrMsg: "slow down",
		},
		{
			name: "non-200 status",
			line: `{"id":"l3","custom_id":"gr_meta::{\"type\":\"uc_generation\",\"run_id\":\"r1\"}",` +
				`"response":{"status_code":429,"body":{"error":{"message":"too many requests"}}}}`,
			wantErrMsg: "non-200 status (429): too many requests",
		},
		{
			name:       "missing choices",
			line:       `{"id":"l4","custom_id":"gr_meta::{\"type\":\"uc_generation\",\"run_id\":\"r1\"}","response":{"status_code":200,"body":{}}}`,
			wantErrMsg: "response body has no choices",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := ParseOutputLine([]byte(tc.line))
			if err != nil {
				t.Fatalf("ParseOutputLine() error = %v", err)
			}
			if resp.Content != tc.wantContent {
				t.Errorf("Content = %q, want %q", resp.Content, tc.wantContent)
			}
			if resp.ErrMessage != tc.wantErrMsg {
				t.Errorf("ErrMessage = %q, want %q", resp.ErrMessage, tc.wantErrMsg)
			}
			if tc.wantErrMsg != "" && !resp.Failed() {
				t.Error("Failed() = false for an error line")
			}
			if resp.Metadata.RunID != "r1" {
				t.Errorf("metadata run_id = %q, want r1", resp.Metadata.RunID)
			}
		})
	}
}

func TestParseOutputFileSkipsBlankAndCountsMalformed(t *testing.T) {
	content := strings.Join([]string{
		`{"id":"l1","custom_id":"gr_meta::{\"type\":\"uc_generation\",\"run_id\":\"r1\"}","response":{"status_code":200,"body":{"choices":[{"message":{"content":"ok"}}]}}}`,
		``,
		`this is not json`,
		`{"id":"l2","custom_id":"plain_id","response":{"status_code":200,"body":{"choices":[{"message":{"content":"also ok"}}]}}}`,
	}, "\n")

	responses, malformed := ParseOutputFile([]byte(content))
	if len(responses) != 2 {
		t.Errorf("got %d responses, want 2", len(responses))
	}
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{StatusCompleted, StatusFailed, StatusExpired, StatusCancelled}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []string{StatusValidating, StatusInProgress, StatusFinalizing, StatusCancelling, StatusAPIError} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
}

func TestUnmarshalFlexible(t *testing.T) {
	type payload struct {
		Units []string `json:"units"`
	}

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "valid json",
			input: `{"units":["a","b"]}`,
			want:  []string{"a", "b"},
		},
		{
			name:  "fenced json",
			input: "```json\n{\"units\":[\"a\"]}\n```",
			want:  []string{"a"},
		},
		{
			name:  "double encoded",
			input: `"{\"units\":[\"a\"]}"`,
			want:  []string{"a"},
		},
		{
			name:  "unquoted keys",
			input: `{units: ["a"]}`,
			want:  []string{"a"},
		},
		{
			name:  "duplicate leading brace",
			input: `{ { "units": ["a"] }`,
			want:  []string{"a"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got payload
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if len(got.Units) != len(tc.want) {
				t.Fatalf("Units = %v, want %v", got.Units, tc.want)
			}
			for i := range tc.want {
				if got.Units[i] != tc.want[i] {
					t.Errorf("Units[%d] = %q, want %q", i, got.Units[i], tc.want[i])
				}
			}
		})
	}
}
