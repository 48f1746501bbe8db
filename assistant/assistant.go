// Package assistant answers spoken questions about scan findings.
package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"guardex/config"
	"guardex/llm"
	"guardex/models"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// Assistant transcribes a question, answers it from the findings and speaks
// the answer.
type Assistant struct {
	cfg    config.AssistantConfig
	client *retryablehttp.Client
	chat   llm.Completer
}

// New returns an Assistant. chat may be nil when no chat key is configured.
func New(cfg config.AssistantConfig, chat llm.Completer) *Assistant {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 60 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = leveledLogger{log: logrus.WithField("component", "assistant")}

	cfg.DeepgramURL = strings.TrimRight(cfg.DeepgramURL, "/")
	return &Assistant{cfg: cfg, client: client, chat: chat}
}

// Handle runs the full voice exchange.
func (a *Assistant) Handle(ctx context.Context, in Input) (*Response, error) {
	if len(in.Audio) == 0 {
		return nil, badRequest("Missing audio file")
	}
	if strings.TrimSpace(in.Vulnerabilities) == "" {
		return nil, badRequest("Missing vulnerability data")
	}

	var vulns []models.Vulnerability
	if err := json.Unmarshal([]byte(in.Vulnerabilities), &vulns); err != nil {
		return nil, badRequest("Invalid vulnerability JSON")
	}

	transcript, err := a.Transcribe(ctx, in.Audio, in.ContentType)
	if err != nil {
		return nil, err
	}

	reply, err := a.Reply(ctx, transcript, vulns)
	if err != nil {
		return nil, err
	}

	audio, err := a.Speak(ctx, reply)
	if err != nil {
		return nil, err
	}

	return &Response{
		Transcription:       transcript,
		ResponseText:        reply,
		ResponseAudioBase64: base64.StdEncoding.EncodeToString(audio),
	}, nil
}

// Transcribe converts recorded audio to text.
func (a *Assistant) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	q := url.Values{}
	q.Set("model", a.cfg.STTModel)
	q.Set("smart_format", "true")

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	body, status, err := a.post(ctx, a.cfg.DeepgramURL+"/listen?"+q.Encode(), contentType, audio)
	if err != nil {
		return "", internal("Deepgram failed to process audio", err.Error())
	}
	if status != http.StatusOK {
		return "", internal("Deepgram failed to process audio", string(body))
	}

	var resp listenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", internal("Deepgram failed to process audio", err.Error())
	}

	transcript := strings.TrimSpace(resp.transcript())
	if transcript == "" {
		return "", internal("Could not transcribe audio", "")
	}
	return transcript, nil
}

// Reply answers the question using only the given findings.
func (a *Assistant) Reply(ctx context.Context, question string, vulns []models.Vulnerability) (string, error) {
	if a.chat == nil {
		return "", &Error{Status: http.StatusServiceUnavailable, Message: "Voice assistant is not configured"}
	}

	text, err := a.chat.Complete(ctx, llm.Request{
		Model:       a.cfg.Model,
		System:      Prompt(question, vulns),
		Prompt:      question,
		MaxTokens:   int32(a.cfg.MaxTokens),
		Temperature: float32(a.cfg.Temperature),
	})
	if err != nil {
		return "", internal("Chat completion failed", err.Error())
	}
	return strings.TrimSpace(text), nil
}

// Speak converts text to audio.
func (a *Assistant) Speak(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("model", a.cfg.TTSModel)

	body, status, err := a.post(ctx, a.cfg.DeepgramURL+"/speak?"+q.Encode(), "application/json", payload)
	if err != nil {
		return nil, internal("TTS failed", err.Error())
	}
	if status != http.StatusOK {
		return nil, internal("TTS failed", string(body))
	}
	return body, nil
}

func (a *Assistant) post(ctx context.Context, endpoint, contentType string, payload []byte) ([]byte, int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Token "+a.cfg.DeepgramKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if resp.StatusCode != http.StatusOK {
		r = io.LimitReader(resp.Body, maxErrorBody)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Prompt builds the system prompt for a question about the findings.
func Prompt(question string, vulns []models.Vulnerability) string {
	lines := make([]string, 0, len(vulns))
	for _, v := range vulns {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", v.Name, v.Severity, v.Description))
	}
	return fmt.Sprintf(systemPrompt, question, strings.Join(lines, "\n\n"))
}

const systemPrompt = `You are a security expert AI assistant. The user asked: "%s"

Based only on the vulnerabilities below, give a clear and concise answer. Focus on what is relevant to the question. Keep it under 970 characters, accurate and friendly.

1. If the user greets you ("Hi", "Hello", "Hey"), reply politely, for example: "Hi there! I can help you understand any vulnerabilities. Ask me anything."
2. If the user asks a general question, respond briefly and helpfully.
3. If the user asks about a specific vulnerability, answer directly and only from the vulnerabilities below.

Never invent information. If the topic is not covered by the vulnerabilities, say: "Sorry, I couldn't find any matching vulnerability in the scan data."

VULNERABILITY DATA:
%s
`

// leveledLogger routes retryablehttp logs to logrus.
type leveledLogger struct {
	log *logrus.Entry
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.with(kv).Error(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.with(kv).Warn(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.with(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.with(kv).Trace(msg) }

func (l leveledLogger) with(kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.log.WithFields(fields)
}
