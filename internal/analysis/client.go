package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/rockhoundapp/rockhound/internal/model"
)

// promptTemplate is the fixed instruction block sent with every request.
// Its hash is recorded in the envelope so a stored result can always be
// traced back to the prompt that produced it.
const promptTemplate = `You are identifying a geological or archaeological specimen from a photo.
Respond with a single JSON object and nothing else, matching this shape:
{
  "best_guess": {"label": string, "confidence": number 0..1, "category": "mineral"|"rock"|"fossil"|"artifact"|"other"},
  "alternatives": [{"label": string, "confidence": number, "category": string}],
  "summary": string,
  "details": { <category-specific block keyed by category> }
}`

// Client is an Analyzer backed by the Anthropic Messages API.
type Client struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	promptHash string
	logger     *log.Logger
}

// NewClient builds a Client for the given API key and model identifier.
// If logger is nil a default stderr logger is used.
func NewClient(apiKey, modelID string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[analysis] ", log.LstdFlags)
	}
	sum := sha256.Sum256([]byte(promptTemplate))
	return &Client{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:      modelID,
		maxTokens:  2048,
		promptHash: hex.EncodeToString(sum[:]),
		logger:     logger,
	}
}

// Analyze sends the photo and context to the model and parses the reply.
func (c *Client) Analyze(ctx context.Context, req Request) (*model.AIEnvelope, error) {
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo %s: %w", req.ImagePath, err)
	}

	mime := mimeForExt(filepath.Ext(req.ImagePath))
	encoded := base64.StdEncoding.EncodeToString(data)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mime, encoded),
				anthropic.NewTextBlock(c.buildPrompt(req)),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}

	result, err := parseResult(text.String())
	if err != nil {
		return nil, err
	}

	env := &model.AIEnvelope{
		SchemaVersion:   SchemaVersion,
		Model:           c.model,
		PromptHash:      c.promptHash,
		PipelineVersion: PipelineVersion,
		RunID:           uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Result:          *result,
	}

	c.logger.Printf("Analyzed %s: %s (%.0f%%)", req.ImagePath,
		result.BestGuess.Label, result.BestGuess.Confidence*100)
	return env, nil
}

// buildPrompt appends the per-find context to the fixed template.
func (c *Client) buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(promptTemplate)
	if req.LocationHint != "" {
		fmt.Fprintf(&b, "\n\nFound near: %s", req.LocationHint)
	}
	if req.SessionContext != "" {
		fmt.Fprintf(&b, "\nOuting: %s", req.SessionContext)
	}
	if req.ContextNotes != "" {
		fmt.Fprintf(&b, "\nCollector notes: %s", req.ContextNotes)
	}
	return b.String()
}

// parseResult extracts the JSON object from the model reply, tolerating
// surrounding prose or markdown fences.
func parseResult(text string) (*model.AIResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("analysis reply contained no JSON object")
	}

	var result model.AIResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis result: %w", err)
	}
	if result.BestGuess.Label == "" {
		return nil, fmt.Errorf("analysis result missing best_guess.label")
	}
	return &result, nil
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
