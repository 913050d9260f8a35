// Package ai wraps the generative text model behind a one-method interface.
// Prompt building lives in the service layer; this package only knows how
// to send a system instruction plus a prompt and get text back.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var ErrEmptyOutput = errors.New("ai: model returned no text")

// Model generates text. *Gemini is the production implementation.
type Model interface {
	// Name identifies the backing model in logs, e.g. "gemini:gemini-2.5-flash".
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

const DefaultModel = "gemini-2.5-flash"

type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// GeminiConfig configures NewGemini. BaseURL is only set in tests.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	BaseURL     string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("ai: creating Gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (g *Gemini) Name() string {
	return "gemini:" + g.model
}

func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("ai: %s generate: %w", g.model, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}
