package source

import "context"

// Text is a config source whose content is a fixed inline string.
type Text struct {
	content string
}

func NewText(content string) *Text {
	return &Text{content: content}
}

var _ Source = (*Text)(nil)

func (t *Text) CacheKey() string { return "text" }

func (t *Text) Fetch(ctx context.Context) (string, error) {
	return t.content, nil
}

// Wait never completes for a Text source.
func (t *Text) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
