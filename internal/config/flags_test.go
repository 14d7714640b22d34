package config

import (
	"os"
	"testing"
)

func TestBoolEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		set   bool
		def   bool
		want  bool
	}{
		{"unset uses default true", "", false, true, true},
		{"unset uses default false", "", false, false, false},
		{"1 is true", "1", true, false, true},
		{"true is true", "true", true, false, true},
		{"TRUE is true", "TRUE", true, false, true},
		{"yes is true", "yes", true, false, true},
		{"on is true", "on", true, false, true},
		{"0 is false", "0", true, true, false},
		{"false is false", "false", true, true, false},
		{"garbage is false", "banana", true, true, false},
		{"whitespace trimmed", "  true  ", true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const key = "GHOSTLINE_TEST_BOOL"
			os.Unsetenv(key)
			if tt.set {
				os.Setenv(key, tt.value)
				defer os.Unsetenv(key)
			}
			if got := BoolEnv(key, tt.def); got != tt.want {
				t.Errorf("BoolEnv(%q=%q, def=%v) = %v, want %v", key, tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestFlagsFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{EnvStrictMode, EnvAllowLLMFallback, EnvRAGRerank, EnvDestructiveSanitizer, EnvFallbackModel} {
		os.Unsetenv(key)
	}

	flags := FlagsFromEnv()

	if flags.StrictMode {
		t.Error("strict mode should default off")
	}
	if !flags.AllowLLMFallback {
		t.Error("LLM fallback should default on")
	}
	if !flags.RAGRerank {
		t.Error("RAG rerank should default on")
	}
	if flags.DestructiveSanitizer {
		t.Error("destructive sanitizer should default off")
	}
	if flags.FallbackModel != DefaultFallbackModel {
		t.Errorf("expected fallback model %s, got %s", DefaultFallbackModel, flags.FallbackModel)
	}
}

func TestFlagsFromEnv_Overrides(t *testing.T) {
	os.Setenv(EnvStrictMode, "1")
	os.Setenv(EnvAllowLLMFallback, "off")
	os.Setenv(EnvRAGRerank, "0")
	os.Setenv(EnvDestructiveSanitizer, "yes")
	os.Setenv(EnvFallbackModel, "gpt-4o-mini")
	defer func() {
		for _, key := range []string{EnvStrictMode, EnvAllowLLMFallback, EnvRAGRerank, EnvDestructiveSanitizer, EnvFallbackModel} {
			os.Unsetenv(key)
		}
	}()

	flags := FlagsFromEnv()

	if !flags.StrictMode {
		t.Error("strict mode should be on")
	}
	if flags.AllowLLMFallback {
		t.Error("LLM fallback should be off")
	}
	if flags.RAGRerank {
		t.Error("RAG rerank should be off")
	}
	if !flags.DestructiveSanitizer {
		t.Error("destructive sanitizer should be on")
	}
	if flags.FallbackModel != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %s", flags.FallbackModel)
	}
}
