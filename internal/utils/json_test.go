package utils

import (
	"testing"
)

func TestParseAIJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name:  "Pure JSON",
			input: `{"query_type": "drug_status", "drug_name": "Keytruda"}`,
			want: map[string]interface{}{
				"query_type": "drug_status",
				"drug_name":  "Keytruda",
			},
			wantErr: false,
		},
		{
			name: "JSON in markdown code block",
			input: "```json\n" +
				`{"query_type": "alternatives", "drug_name": "Humira"}` + "\n```",
			want: map[string]interface{}{
				"query_type": "alternatives",
				"drug_name":  "Humira",
			},
			wantErr: false,
		},
		{
			name:  "JSON with surrounding text",
			input: `Here is the parsed intent: {"query_type": "list_filter", "count": 5} as requested.`,
			want: map[string]interface{}{
				"query_type": "list_filter",
				"count":      float64(5),
			},
			wantErr: false,
		},
		{
			name:  "JSON with trailing comma",
			input: `{"query_type": "drug_status", "confidence": 75,}`,
			want: map[string]interface{}{
				"query_type": "drug_status",
				"confidence": float64(75),
			},
			wantErr: false,
		},
		{
			name:  "JSON with unquoted keys",
			input: `{query_type: "unknown", confidence: 0}`,
			want: map[string]interface{}{
				"query_type": "unknown",
				"confidence": float64(0),
			},
			wantErr: false,
		},
		{
			name:    "Empty string",
			input:   "",
			want:    nil,
			wantErr: true,
		},
		{
			name:    "Invalid JSON",
			input:   "not json at all",
			want:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]interface{}
			err := ParseAIJSON(tt.input, &got)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAIJSON() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParseAIJSON() got = %v, want %v", got, tt.want)
				}
				for k, v := range tt.want {
					if got[k] != v {
						t.Errorf("ParseAIJSON() got[%q] = %v, want %v", k, got[k], v)
					}
				}
			}
		})
	}
}

func TestExtractFromMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "JSON code block with json tag",
			input: "```json\n{\"drug_name\": \"Stelara\"}\n```",
			want:  `{"drug_name": "Stelara"}`,
		},
		{
			name:  "JSON code block without tag",
			input: "```\n{\"drug_name\": \"Stelara\"}\n```",
			want:  `{"drug_name": "Stelara"}`,
		},
		{
			name:  "No code block",
			input: `{"drug_name": "Stelara"}`,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractFromMarkdown(tt.input)
			if got != tt.want {
				t.Errorf("extractFromMarkdown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractBalancedBraces(t *testing.T) {
	tests := []struct {
		name  string
		input string
		open  rune
		close rune
		want  string
	}{
		{
			name:  "Simple object",
			input: `{"a": 1}`,
			open:  '{',
			close: '}',
			want:  `{"a": 1}`,
		},
		{
			name:  "Nested objects",
			input: `{"filters": {"category": "oncology"}}`,
			open:  '{',
			close: '}',
			want:  `{"filters": {"category": "oncology"}}`,
		},
		{
			name:  "Object with string containing braces",
			input: `{"notes": "dose {weight based}"}`,
			open:  '{',
			close: '}',
			want:  `{"notes": "dose {weight based}"}`,
		},
		{
			name:  "Array",
			input: `[1, 2, 3]`,
			open:  '[',
			close: ']',
			want:  `[1, 2, 3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractBalancedBraces(tt.input, tt.open, tt.close)
			if got != tt.want {
				t.Errorf("extractBalancedBraces() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{
			name:  "Valid object",
			input: `{"drug_status": "preferred"}`,
			want:  true,
		},
		{
			name:  "Valid array",
			input: `["Keytruda", "Humira"]`,
			want:  true,
		},
		{
			name:  "Invalid JSON",
			input: `{drug_status: preferred}`,
			want:  false,
		},
		{
			name:  "Empty string",
			input: "",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateJSON(tt.input)
			if got != tt.want {
				t.Errorf("ValidateJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}
