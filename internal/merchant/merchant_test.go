package merchant

import "testing"

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"  NETFLIX.COM   AMSTERDAM ", "Netflix.com Amsterdam"},
		{"POS 4512 CONAD SUPERSTORE", "Conad Superstore"},
		{"CARTA ****1234 ESSELUNGA", "Esselunga"},
		{"SPOTIFY AB 20240115", "Spotify Ab"},
		{"1234", "1234"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Netflix.com", "netflix com"},
		{"Café  Rossi", "cafe rossi"},
		{"  Dan Murphy's ", "dan murphy s"},
		{"ÉNEL Energia", "enel energia"},
	}
	for _, tt := range tests {
		if got := Key(tt.in); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if Key(Clean("POS 4512 NETFLIX")) != Key("netflix") {
		t.Error("cleaned and plain keys differ")
	}
}
