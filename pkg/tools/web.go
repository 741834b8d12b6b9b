package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

const maxPageContent = 50000

// Web fetches pages and reduces them to readable text for step output.
type Web struct {
	client    *http.Client
	sanitizer *bluemonday.Policy
	userAgent string
	logger    zerolog.Logger
}

// NewWeb creates the web invoker.
func NewWeb(logger zerolog.Logger) *Web {
	return &Web{
		client:    &http.Client{Timeout: 30 * time.Second},
		sanitizer: bluemonday.StrictPolicy(),
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		logger:    logger,
	}
}

func (w *Web) Capability() Capability { return CapabilityWeb }

func (w *Web) Actions() []string { return []string{"fetch_url"} }

func (w *Web) Invoke(ctx context.Context, action string, args map[string]interface{}) (string, error) {
	if action != "fetch_url" {
		return "", &UnsupportedActionError{Capability: CapabilityWeb, Action: action}
	}

	rawURL, err := requiredStringArg(args, "url")
	if err != nil {
		return "", err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid URL %q: only http and https are supported", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("extracting content from %s: %w", rawURL, err)
	}

	content := w.sanitizer.Sanitize(article.TextContent)
	if len(content) > maxPageContent {
		content = content[:maxPageContent] + "\n... (content truncated) ..."
	}

	w.logger.Debug().Str("url", rawURL).Int("bytes", len(content)).Msg("fetched page")

	out := fmt.Sprintf("TITLE: %s\n", article.Title)
	if article.Excerpt != "" {
		out += fmt.Sprintf("EXCERPT: %s\n", article.Excerpt)
	}
	return out + "\n" + content, nil
}
