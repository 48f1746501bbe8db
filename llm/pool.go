package llm

import (
	"context"
	"errors"
	"fmt"
	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/sirupsen/logrus"
	"guardex/config"
	"sync"
)

var (
	ErrNoKeys          = errors.New("no LLM API keys configured")
	ErrEmptyCompletion = errors.New("no completion received from LLM")
)

// Request is a single chat completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

// Completer returns the completion text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// chatClient is the part of *azopenai.Client the pool uses.
type chatClient interface {
	GetChatCompletions(ctx context.Context, body azopenai.ChatCompletionsOptions, options *azopenai.GetChatCompletionsOptions) (azopenai.GetChatCompletionsResponse, error)
}

// TokenUsage accumulates the tokens spent by a pool.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Pool spreads completions over several API keys. Every key is used for at
// most rotationLimit consecutive requests before the next key takes over.
type Pool struct {
	mu            sync.Mutex
	clients       []chatClient
	current       int
	counter       int
	rotationLimit int
	usage         TokenUsage
}

// NewPool builds one client per configured key.
func NewPool(cfg config.LLMConfig) (*Pool, error) {
	if len(cfg.Keys) == 0 {
		return nil, ErrNoKeys
	}

	clients := make([]chatClient, 0, len(cfg.Keys))
	for i, key := range cfg.Keys {
		cred := azcore.NewKeyCredential(key)

		var (
			client *azopenai.Client
			err    error
		)
		if cfg.Azure {
			client, err = azopenai.NewClientWithKeyCredential(cfg.Endpoint, cred, nil)
		} else {
			client, err = azopenai.NewClientForOpenAI(cfg.Endpoint, cred, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("error creating LLM client for key %d: %v", i, err)
		}
		clients = append(clients, client)
	}
	return newPool(clients, cfg.RotationLimit), nil
}

func newPool(clients []chatClient, rotationLimit int) *Pool {
	if rotationLimit < 1 {
		rotationLimit = 3
	}
	return &Pool{
		clients:       clients,
		rotationLimit: rotationLimit,
	}
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int {
	return len(p.clients)
}

// Current returns the index of the key in use.
func (p *Pool) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Rotate switches to the next key immediately.
func (p *Pool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotate()
}

func (p *Pool) rotate() {
	p.counter = 0
	p.current = (p.current + 1) % len(p.clients)
	logrus.Debugf("LLM key pool rotated to key %d", p.current)
}

// client returns the client to use for the next request.
func (p *Pool) client() chatClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counter >= p.rotationLimit {
		p.rotate()
	}
	p.counter++
	return p.clients[p.current]
}

// Complete sends a single chat completion with the current key.
func (p *Pool) Complete(ctx context.Context, req Request) (string, error) {
	if len(p.clients) == 0 {
		return "", ErrNoKeys
	}

	messages := make([]azopenai.ChatRequestMessageClassification, 0, 2)
	if req.System != "" {
		messages = append(messages, &azopenai.ChatRequestSystemMessage{
			Content: azopenai.NewChatRequestSystemMessageContent(req.System),
		})
	}
	messages = append(messages, &azopenai.ChatRequestUserMessage{
		Content: azopenai.NewChatRequestUserMessageContent(req.Prompt),
	})

	opts := azopenai.ChatCompletionsOptions{
		DeploymentName: to.Ptr(req.Model),
		Messages:       messages,
	}
	if req.MaxTokens > 0 {
		opts.MaxTokens = to.Ptr(req.MaxTokens)
	}
	if req.Temperature > 0 {
		opts.Temperature = to.Ptr(req.Temperature)
	}

	resp, err := p.client().GetChatCompletions(ctx, opts, nil)
	if err != nil {
		return "", err
	}
	p.addUsage(resp.Usage)

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil && resp.Choices[0].Message.Content != nil {
		return *resp.Choices[0].Message.Content, nil
	}
	return "", ErrEmptyCompletion
}

// Usage returns the tokens spent so far.
func (p *Pool) Usage() TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

func (p *Pool) addUsage(u *azopenai.CompletionsUsage) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if u.PromptTokens != nil {
		p.usage.PromptTokens += int(*u.PromptTokens)
	}
	if u.CompletionTokens != nil {
		p.usage.CompletionTokens += int(*u.CompletionTokens)
	}
	if u.TotalTokens != nil {
		p.usage.TotalTokens += int(*u.TotalTokens)
	}
}

// Rotator is a Completer backed by several keys.
type Rotator interface {
	Completer
	Size() int
	Rotate()
}

// CompleteRotating tries each key of r at most once, rotating to the next key
// after every failure. The last error is returned when all attempts fail.
func CompleteRotating(ctx context.Context, r Rotator, req Request) (string, error) {
	var lastErr error = ErrNoKeys
	for attempt := 0; attempt < r.Size(); attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := r.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		logrus.Warnf("LLM call failed (attempt %d/%d): %v", attempt+1, r.Size(), err)
		r.Rotate()
	}
	return "", lastErr
}
