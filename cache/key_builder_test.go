package cache

import "testing"

func TestKeyBuilderBuild(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		segments  []string
		expected  string
	}{
		{
			name:      "default namespace",
			namespace: "",
			segments:  []string{"user_preferences", "alice@example.com", "Task"},
			expected:  "column_mgmt::user_preferences::alice@example.com::Task",
		},
		{
			name:      "custom namespace normalized",
			namespace: "MyPlugin",
			segments:  []string{"metadata", "Sales Invoice"},
			expected:  "my_plugin::metadata::Sales Invoice",
		},
		{
			name:      "separator stripped from segments",
			namespace: "ns",
			segments:  []string{"a::b"},
			expected:  "ns::a:b",
		},
		{
			name:      "no segments",
			namespace: "ns",
			segments:  nil,
			expected:  "ns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewKeyBuilder(tt.namespace)
			if got := b.Build(tt.segments...); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestKeyBuilderPattern(t *testing.T) {
	b := NewKeyBuilder("column_mgmt")
	got := b.Pattern("user_preferences", "alice", "*")
	want := "column_mgmt::user_preferences::alice::*"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFlattenMap(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected string
	}{
		{name: "nil map", input: nil, expected: "none"},
		{name: "empty map", input: map[string]any{}, expected: "none"},
		{
			name:     "sorted by key",
			input:    map[string]any{"status": "Open", "assigned": "alice", "limit": 20},
			expected: "assigned=alice,limit=20,status=Open",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlattenMap(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFlattenMapDeterministic(t *testing.T) {
	m := map[string]any{"b": 2, "a": 1, "c": 3}
	first := FlattenMap(m)
	for i := 0; i < 50; i++ {
		if got := FlattenMap(m); got != first {
			t.Fatalf("iteration %d produced %q, first was %q", i, got, first)
		}
	}
}

func TestToSnake(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"UserProfile", "user_profile"},
		{"HTTPServer", "http_server"},
		{"column_mgmt", "column_mgmt"},
		{"My-Plugin Name", "my_plugin_name"},
		{"already_snake", "already_snake"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := toSnake(tt.input); got != tt.expected {
				t.Errorf("toSnake(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
