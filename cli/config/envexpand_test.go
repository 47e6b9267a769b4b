package config

import (
	"reflect"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("DFX_TEST_SET", "hello")
	t.Setenv("DFX_TEST_EMPTY", "")

	tests := []struct {
		name, in, want string
	}{
		{"set", "v: ${DFX_TEST_SET}", "v: hello"},
		{"unset", "v: ${DFX_TEST_UNSET_1}", "v: "},
		{"default when unset", "v: ${DFX_TEST_UNSET_1:-fallback}", "v: fallback"},
		{"default when empty", "v: ${DFX_TEST_EMPTY:-fallback}", "v: fallback"},
		{"default ignored when set", "v: ${DFX_TEST_SET:-fallback}", "v: hello"},
		{"url default", "u: ${DFX_TEST_UNSET_1:-https://api.deepaffex.ai}", "u: https://api.deepaffex.ai"},
		{"multiple", "${DFX_TEST_SET}-${DFX_TEST_SET}", "hello-hello"},
		{"bare dollar untouched", "$DFX_TEST_SET and $", "$DFX_TEST_SET and $"},
		{"invalid name untouched", "${1BAD}", "${1BAD}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.in); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnsetRefs(t *testing.T) {
	t.Setenv("DFX_TEST_SET", "x")
	in := "${DFX_TEST_SET} ${DFX_TEST_UNSET_A} ${DFX_TEST_UNSET_B:-d} ${DFX_TEST_UNSET_A} ${DFX_TEST_UNSET_C}"
	got := UnsetRefs(in)
	want := []string{"DFX_TEST_UNSET_A", "DFX_TEST_UNSET_C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnsetRefs = %v, want %v", got, want)
	}
}
