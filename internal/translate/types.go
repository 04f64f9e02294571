package translate

import "context"

// Options carries the per-call translation configuration. The credential is
// chosen by the rotator, everything else comes from settings and the project
// context builder.
type Options struct {
	Credential     string
	Model          string
	TargetLanguage string
	Style          string
	Glossary       map[string]string
	StyleGuide     string
	ProjectContext string
}

// SingleRequest translates one cue with a symmetric sliding window of
// neighbouring cue texts as disambiguating context.
type SingleRequest struct {
	Text      string
	Preceding []string
	Following []string
	Options   Options
}

// BatchRequest translates several cue texts in one call. Callers must verify
// that the response length equals len(Texts).
type BatchRequest struct {
	Texts   []string
	Options Options
}

// Backend is the translation API consumed by the queue engine.
type Backend interface {
	TranslateOne(ctx context.Context, req SingleRequest) (string, error)
	TranslateBatch(ctx context.Context, req BatchRequest) ([]string, error)
}
