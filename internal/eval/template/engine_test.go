package template

import "testing"

func TestEngine_Render(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		template string
		data     interface{}
		want     string
	}{
		{
			name:     "plain field",
			template: "{{vars.site}}",
			data:     map[string]interface{}{"vars": map[string]interface{}{"site": "news"}},
			want:     "news",
		},
		{
			name:     "uppercase helper",
			template: "{{uppercase vars.site}}",
			data:     map[string]interface{}{"vars": map[string]interface{}{"site": "news"}},
			want:     "NEWS",
		},
		{
			name:     "default helper",
			template: `{{default vars.section "home"}}`,
			data:     map[string]interface{}{"vars": map[string]interface{}{}},
			want:     "home",
		},
		{
			name:     "truncate helper",
			template: "{{truncate vars.title 3}}",
			data:     map[string]interface{}{"vars": map[string]interface{}{"title": "标题很长"}},
			want:     "标题很",
		},
		{
			name:     "replace helper",
			template: `{{replace vars.path "/" "-"}}`,
			data:     map[string]interface{}{"vars": map[string]interface{}{"path": "a/b/c"}},
			want:     "a-b-c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Render(tt.template, tt.data)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngine_MultipleInstances(t *testing.T) {
	// Helper registration must happen once per process.
	_ = NewEngine()
	e := NewEngine()
	if _, err := e.Render("{{lowercase x}}", map[string]interface{}{"x": "A"}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestEngine_Cache(t *testing.T) {
	e := NewEngine()

	if _, err := e.Render("{{x}}", nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if e.cache.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", e.cache.Len())
	}
	e.ClearCache()
	if e.cache.Len() != 0 {
		t.Errorf("cache len after clear = %d, want 0", e.cache.Len())
	}
}

func TestEngine_ValidateTemplate(t *testing.T) {
	e := NewEngine()

	if err := e.ValidateTemplate("{{#if x}}open"); err == nil {
		t.Error("expected error for unterminated block")
	}
	if err := e.ValidateTemplate("{{x}}"); err != nil {
		t.Errorf("ValidateTemplate() error = %v", err)
	}
}
