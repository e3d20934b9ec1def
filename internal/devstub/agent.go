package devstub

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/vortexhq/vortex-voice/domain/entities"
)

// ReplyGenerator produces the stub agent's conversational replies
type ReplyGenerator interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// ScriptedAgent cycles through canned replies, keeping local development
// deterministic and offline.
type ScriptedAgent struct {
	mu      sync.Mutex
	replies []string
	next    int
}

var _ ReplyGenerator = (*ScriptedAgent)(nil)

// NewScriptedAgent creates a scripted agent with default small talk
func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{
		replies: []string{
			"Hi, I'm your Vortex companion. What would you like to talk about while we wait?",
			"That's interesting. Tell me more while I look for a room for you.",
			"Good one. Your match should be ready any moment now.",
		},
	}
}

// Reply returns the next canned reply
func (a *ScriptedAgent) Reply(_ context.Context, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reply := a.replies[a.next%len(a.replies)]
	a.next++
	return reply, nil
}

// GeminiAgent generates replies with the Gemini API when an API key is
// available.
type GeminiAgent struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ ReplyGenerator = (*GeminiAgent)(nil)

// NewGeminiAgent creates a Gemini-backed reply generator
func NewGeminiAgent(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiAgent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAgent{
		client: client,
		model:  "gemini-2.0-flash",
		logger: logger,
	}, nil
}

// Reply generates one conversational reply
func (a *GeminiAgent) Reply(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(
			"You are a friendly voice companion keeping a user company while they wait to be matched into a group call. Reply in one or two short spoken sentences.",
			genai.RoleUser),
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	response, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", fmt.Errorf("no content generated")
	}

	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", fmt.Errorf("empty reply")
	}
	return text, nil
}

// synthesizeSpeech renders placeholder synthesized speech for a reply: a soft
// tone in the protocol's 16-bit mono 24 kHz format, roughly 60ms per word.
func synthesizeSpeech(text string) []byte {
	words := 1
	for _, r := range text {
		if r == ' ' {
			words++
		}
	}

	sampleRate := entities.TargetFormat.SampleRate
	samples := words * sampleRate * 60 / 1000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(3000 * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate)))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}
