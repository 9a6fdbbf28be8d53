package app

import "testing"

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		cmd  string
		arg  string
	}{
		{name: "bare command", text: "/stock", cmd: "stock"},
		{name: "with argument", text: "/watch rock candy", cmd: "watch", arg: "rock candy"},
		{name: "group mention form", text: "/watch@GardenBot carrot", cmd: "watch", arg: "carrot"},
		{name: "case folded", text: "/STOCK", cmd: "stock"},
		{name: "surrounding whitespace", text: "  /watchlist  ", cmd: "watchlist"},
		{name: "plain text ignored", text: "hello there"},
		{name: "empty", text: ""},
		{name: "slash only", text: "/"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cmd, arg := parseCommand(tt.text)
			if cmd != tt.cmd || arg != tt.arg {
				t.Fatalf("parseCommand(%q) = (%q, %q), want (%q, %q)", tt.text, cmd, arg, tt.cmd, tt.arg)
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"seeds", "Seeds"},
		{"night", "Night"},
		{"", ""},
		{"égg", "Égg"},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Fatalf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
