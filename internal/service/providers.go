package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StreamChunkParser parses provider-specific streaming chunks
type StreamChunkParser interface {
	// ParseChunk parses raw SSE data into a generic StreamChunk
	ParseChunk(data []byte) (*StreamChunk, error)

	// ProviderName returns the provider name for logging
	ProviderName() string
}

// OpenAIStreamChunkParser parses OpenAI-compatible streaming chunks
// (OpenAI, OpenRouter, and most compatible gateways)
type OpenAIStreamChunkParser struct{}

func (p *OpenAIStreamChunkParser) ProviderName() string {
	return "openai"
}

func (p *OpenAIStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Role    string `json:"role,omitempty"`
				Content string `json:"content,omitempty"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI chunk: %w", err)
	}

	if len(chunk.Choices) == 0 {
		return &StreamChunk{}, nil
	}

	choice := chunk.Choices[0]
	return &StreamChunk{
		Content: choice.Delta.Content,
		Role:    choice.Delta.Role,
		Done:    choice.FinishReason != nil,
	}, nil
}

// NVIDIAStreamChunkParser parses NVIDIA API streaming chunks, which carry
// reasoning content in a separate delta field
type NVIDIAStreamChunkParser struct{}

func (p *NVIDIAStreamChunkParser) ProviderName() string {
	return "nvidia"
}

func (p *NVIDIAStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Role             string `json:"role,omitempty"`
				Content          string `json:"content,omitempty"`
				ReasoningContent string `json:"reasoning_content,omitempty"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("failed to parse NVIDIA chunk: %w", err)
	}

	if len(chunk.Choices) == 0 {
		return &StreamChunk{}, nil
	}

	choice := chunk.Choices[0]
	return &StreamChunk{
		Content:         choice.Delta.Content,
		ThinkingContent: choice.Delta.ReasoningContent,
		Role:            choice.Delta.Role,
		Done:            choice.FinishReason != nil,
	}, nil
}

// IsOpenAIProvider checks if the API base is the official OpenAI API
func IsOpenAIProvider(apiBase string) bool {
	return strings.Contains(apiBase, "api.openai.com")
}

// IsOpenRouterProvider checks if the API base is OpenRouter
func IsOpenRouterProvider(apiBase string) bool {
	return strings.Contains(apiBase, "openrouter.ai")
}

// IsNVIDIAProvider checks if the API base is the NVIDIA API
func IsNVIDIAProvider(apiBase string) bool {
	return strings.Contains(apiBase, "integrate.api.nvidia.com")
}
