package content

import "testing"

func TestSanitizeBody(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "hello world", "hello world"},
		{"strips script", `hi <script>alert("x")</script>there`, "hi there"},
		{"strips tags", "<b>bold</b>", "bold"},
		{"trims whitespace", "  spaced  ", "spaced"},
		{"only markup", "<img src=x>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeBody(tt.input); got != tt.want {
				t.Errorf("SanitizeBody(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName(" <i>Team</i> "); got != "Team" {
		t.Errorf("SanitizeName = %q, want Team", got)
	}
}
