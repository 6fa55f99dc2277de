// Package fetch implements the web_fetch tool: HTTP retrieval with
// text, HTML, Markdown and JSON output formats.
package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/tools"
)

// Options configures the web_fetch tool.
type Options struct {
	Enabled         bool
	TimeoutSeconds  int
	MaxResponseSize int64
	UserAgent       string
}

// FetchTool fetches content from URLs.
type FetchTool struct {
	opts   Options
	logger *logger.Logger
}

// FetchArgs represents the arguments for the web_fetch tool.
type FetchArgs struct {
	URL             string            `json:"url"`
	Format          string            `json:"format,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Method          string            `json:"method,omitempty"`
	Body            string            `json:"body,omitempty"`
	BasicAuth       *BasicAuth        `json:"basicAuth,omitempty"`
	Cookies         map[string]string `json:"cookies,omitempty"`
	FollowRedirects *bool             `json:"followRedirects,omitempty"`
	Timeout         *int              `json:"timeout,omitempty"`
}

// BasicAuth holds Basic Authentication credentials.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewFetchTool creates a new FetchTool instance.
func NewFetchTool(opts Options, log *logger.Logger) *FetchTool {
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = 30
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = 5 * 1024 * 1024
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "goclaw/1.0"
	}
	return &FetchTool{opts: opts, logger: log}
}

// Name returns the tool name.
func (t *FetchTool) Name() string {
	return "web_fetch"
}

// Description returns a description of what the tool does.
func (t *FetchTool) Description() string {
	return "Fetch content from a URL. Returns formatted text with metadata."
}

// InputSchema returns the JSON Schema for the tool's input.
func (t *FetchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch. Must start with http:// or https://",
			},
			"format": map[string]any{
				"type":        "string",
				"enum":        []string{"text", "html", "markdown", "json"},
				"default":     "text",
				"description": "Output format: 'text' (strips HTML tags), 'html' (raw HTML), 'markdown' (converts HTML to Markdown), or 'json' (parse JSON response)",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Optional HTTP headers. Example: {\"Accept\": \"application/json\"}",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"basicAuth": map[string]any{
				"type":        "object",
				"description": "Optional Basic Authentication credentials.",
				"properties": map[string]any{
					"username": map[string]any{
						"type":        "string",
						"description": "Username for Basic Auth",
					},
					"password": map[string]any{
						"type":        "string",
						"description": "Password for Basic Auth",
					},
				},
			},
			"cookies": map[string]any{
				"type":        "object",
				"description": "Optional cookies to send. Example: {\"sessionid\": \"abc123\"}",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"followRedirects": map[string]any{
				"type":        "boolean",
				"default":     true,
				"description": "Follow HTTP redirects. Set to false to stop at the first redirect",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (1-120). Overrides the default configuration",
				"minimum":     1,
				"maximum":     120,
			},
			"method": map[string]any{
				"type":        "string",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default":     "GET",
				"description": "HTTP method to use",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body (for POST, PUT, PATCH methods)",
			},
		},
		"required": []string{"url"},
	}
}

// OutputSchema returns the JSON Schema for the tool's output.
func (t *FetchTool) OutputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":         map[string]any{"type": "string"},
			"status":      map[string]any{"type": "integer"},
			"contentType": map[string]any{"type": "string"},
			"content":     map[string]any{"type": "string"},
		},
	}
}

// RiskProfiles returns the capability tags for this tool.
func (t *FetchTool) RiskProfiles() []domain.RiskProfile {
	return []domain.RiskProfile{domain.RiskNetworkCalls}
}

// Execute fetches the URL and returns the formatted response.
func (t *FetchTool) Execute(ctx context.Context, args string, stream tools.Stream) (tools.Result, error) {
	var fetchArgs FetchArgs
	if err := tools.ParseArgs(args, &fetchArgs); err != nil {
		return tools.Fail(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	if fetchArgs.URL == "" {
		return tools.Fail("url is required"), nil
	}
	if fetchArgs.Format == "" {
		fetchArgs.Format = "text"
	}
	if fetchArgs.Method == "" {
		fetchArgs.Method = "GET"
	}
	if fetchArgs.Body != "" && (fetchArgs.Method == "GET" || fetchArgs.Method == "HEAD" || fetchArgs.Method == "DELETE") {
		fetchArgs.Body = ""
	}

	if !t.opts.Enabled {
		return tools.Fail("web_fetch tool is disabled in configuration"), nil
	}

	if !strings.HasPrefix(fetchArgs.URL, "http://") && !strings.HasPrefix(fetchArgs.URL, "https://") {
		return tools.Fail("url must start with http:// or https://"), nil
	}

	timeout := time.Duration(t.opts.TimeoutSeconds) * time.Second
	if fetchArgs.Timeout != nil {
		if *fetchArgs.Timeout < 1 {
			return tools.Fail("timeout must be at least 1 second"), nil
		}
		if *fetchArgs.Timeout > 120 {
			return tools.Fail("timeout cannot exceed 120 seconds"), nil
		}
		timeout = time.Duration(*fetchArgs.Timeout) * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if fetchArgs.FollowRedirects != nil && !*fetchArgs.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var bodyReader io.Reader
	if fetchArgs.Body != "" {
		bodyReader = strings.NewReader(fetchArgs.Body)
	}

	req, err := http.NewRequestWithContext(ctx, fetchArgs.Method, fetchArgs.URL, bodyReader)
	if err != nil {
		return tools.Fail(fmt.Sprintf("failed to create request: %v", err)), nil
	}
	req.Header.Set("User-Agent", t.opts.UserAgent)
	req.Header.Set("Accept", "*/*")
	if fetchArgs.Body != "" {
		contentTypeSet := false
		for name := range fetchArgs.Headers {
			if strings.ToLower(name) == "content-type" {
				contentTypeSet = true
				break
			}
		}
		if !contentTypeSet {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	for name, value := range fetchArgs.Headers {
		req.Header.Set(name, value)
	}

	if fetchArgs.BasicAuth != nil && fetchArgs.BasicAuth.Username != "" {
		authValue := fetchArgs.BasicAuth.Username + ":" + fetchArgs.BasicAuth.Password
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(authValue)))
	}

	if len(fetchArgs.Cookies) > 0 {
		cookiePairs := make([]string, 0, len(fetchArgs.Cookies))
		for key, value := range fetchArgs.Cookies {
			cookiePairs = append(cookiePairs, key+"="+value)
		}
		req.Header.Set("Cookie", strings.Join(cookiePairs, "; "))
	}

	resp, err := client.Do(req)
	if err != nil {
		return tools.Fail(fmt.Sprintf("request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.ContentLength > t.opts.MaxResponseSize {
		return tools.Fail(fmt.Sprintf("response too large: %d bytes exceeds %d bytes limit",
			resp.ContentLength, t.opts.MaxResponseSize)), nil
	}

	limitReader := io.LimitReader(resp.Body, t.opts.MaxResponseSize)
	body, err := io.ReadAll(limitReader)
	if err != nil {
		return tools.Fail(fmt.Sprintf("failed to read response: %v", err)), nil
	}
	if int64(len(body)) >= t.opts.MaxResponseSize {
		return tools.Fail(fmt.Sprintf("response truncated: exceeds %d bytes limit", t.opts.MaxResponseSize)), nil
	}

	stream.Progress(100)

	contentType := resp.Header.Get("Content-Type")
	content := string(body)

	if fetchArgs.Format == "text" && strings.Contains(contentType, "text/html") {
		content = t.stripHTML(content)
	}
	if fetchArgs.Format == "markdown" && strings.Contains(contentType, "text/html") {
		content = t.htmlToMarkdown(content)
	}

	result := map[string]any{
		"url":         fetchArgs.URL,
		"status":      resp.StatusCode,
		"statusText":  resp.Status,
		"contentType": contentType,
		"length":      len(content),
		"content":     content,
	}

	if fetchArgs.Format == "json" {
		var jsonData any
		if err := json.Unmarshal(body, &jsonData); err != nil {
			return tools.Fail(fmt.Sprintf("failed to parse JSON response: %v", err)), nil
		}
		result["json"] = jsonData
	}

	headers := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	result["headers"] = headers

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return tools.Fail(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return tools.Ok(string(resultJSON)), nil
}

func (t *FetchTool) stripHTML(html string) string {
	reScript := regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	html = reScript.ReplaceAllString(html, "")

	reStyle := regexp.MustCompile(`(?i)<style[^>]*>.*?</style>`)
	html = reStyle.ReplaceAllString(html, "")

	reTags := regexp.MustCompile(`<[^>]+>`)
	html = reTags.ReplaceAllString(html, "\n")

	reSpace := regexp.MustCompile(`\s+`)
	html = reSpace.ReplaceAllString(html, " ")

	return strings.TrimSpace(html)
}

func (t *FetchTool) htmlToMarkdown(html string) string {
	opts := &md.Options{
		HeadingStyle:    "atx",
		CodeBlockStyle:  "fenced",
		EmDelimiter:     "*",
		StrongDelimiter: "**",
	}

	converter := md.NewConverter("", true, opts)
	converter.Keep("a", "img")
	converter.AddRules(md.Rule{
		Filter: []string{"nav", "footer", "aside", "script", "style"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			empty := ""
			return &empty
		},
	})

	markdown, err := converter.ConvertString(html)
	if err != nil {
		t.logger.Error("failed to convert HTML to Markdown", err)
		return ""
	}

	reSpace := regexp.MustCompile(`\s+`)
	markdown = reSpace.ReplaceAllString(markdown, " ")

	reCleanNewlines := regexp.MustCompile(`\n{3,}`)
	markdown = reCleanNewlines.ReplaceAllString(markdown, "\n\n")

	return strings.TrimSpace(markdown)
}
