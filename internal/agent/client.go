// Package agent is the HTTP client for the external engine that extracts
// profile fields from a conversation, runs the risk model and writes the
// coaching text.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cardiosense/assessment-api/internal/config"
	"github.com/cardiosense/assessment-api/internal/model"
)

// UnavailableReply is answered instead of calling the engine when it is
// disabled.
const UnavailableReply = "El servicio de mensajería inteligente no está disponible porque el backend no está conectado. Conéctalo y vuelve a intentarlo."

// CoachUnavailableReply is the coach counterpart of UnavailableReply.
const CoachUnavailableReply = "El coach no está disponible en este momento. Vuelve a intentarlo más tarde."

// ErrUnavailable is returned for 503 answers from the engine.
var ErrUnavailable = errors.New("engine unavailable")

// Message is one transcript entry sent as context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prediction is the structured outcome the engine returns once it has
// collected every field it needs.
type Prediction struct {
	RiskScore float64         `json:"risk_score"`
	RiskLevel model.RiskLevel `json:"risk_level"`
	ModelUsed string          `json:"model_used"`
	Drivers   model.Drivers   `json:"drivers"`
	Payload   model.Payload   `json:"payload"`
}

// TurnResult is the engine's answer to one conversation turn.
type TurnResult struct {
	Reply          string      `json:"reply"`
	PredictionMade bool        `json:"prediction_made"`
	Prediction     *Prediction `json:"prediction,omitempty"`
}

// CoachContext summarises the assessment the coach answers about.
type CoachContext struct {
	RiskScore float64         `json:"risk_score"`
	RiskLevel model.RiskLevel `json:"risk_level"`
	ModelUsed string          `json:"model_used"`
	Drivers   model.Drivers   `json:"drivers"`
	PlanText  string          `json:"plan_text"`
	Payload   model.Payload   `json:"profile"`
}

type turnRequest struct {
	Messages []Message `json:"messages"`
}

type coachRequest struct {
	Question   string       `json:"question"`
	Assessment CoachContext `json:"assessment"`
	History    []Message    `json:"history,omitempty"`
}

type coachResponse struct {
	Reply string `json:"reply"`
}

type Client struct {
	enabled    bool
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(cfg config.AgentConfig) *Client {
	return &Client{
		enabled:    cfg.Enabled,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether calls reach the engine.
func (c *Client) Enabled() bool { return c.enabled }

// Turn sends the transcript and returns the next assistant reply. When
// the engine is disabled the canned reply comes back and no prediction
// is ever made.
func (c *Client) Turn(ctx context.Context, history []Message) (TurnResult, error) {
	if !c.enabled {
		return TurnResult{Reply: UnavailableReply}, nil
	}
	var out TurnResult
	if err := c.post(ctx, "/v1/turn", turnRequest{Messages: history}, &out); err != nil {
		return TurnResult{}, err
	}
	if out.PredictionMade && out.Prediction == nil {
		return TurnResult{}, fmt.Errorf("turn: prediction flagged without payload")
	}
	if p := out.Prediction; p != nil {
		if p.RiskScore < 0 || p.RiskScore > 1 {
			return TurnResult{}, fmt.Errorf("turn: risk score %v out of range", p.RiskScore)
		}
		p.RiskLevel = model.RiskLevel(strings.ToLower(string(p.RiskLevel)))
		if !p.RiskLevel.Valid() {
			p.RiskLevel = model.ClassifyRisk(p.RiskScore)
		}
		if p.ModelUsed == "" {
			p.ModelUsed = "diabetes"
		}
	}
	return out, nil
}

// Coach answers a question about an existing plan.
func (c *Client) Coach(ctx context.Context, question string, a CoachContext, history []Message) (string, error) {
	if !c.enabled {
		return CoachUnavailableReply, nil
	}
	var out coachResponse
	if err := c.post(ctx, "/v1/coach", coachRequest{Question: question, Assessment: a, History: history}, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return ErrUnavailable
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, errorDetail(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// maxDetailRunes caps raw error bodies quoted in errors.
const maxDetailRunes = 200

// errorDetail pulls a message out of the usual error bodies
// ({"detail": ...}, {"error": ...}, {"message": ...}).
func errorDetail(body []byte) string {
	var e struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		for _, s := range []string{e.Detail, e.Error, e.Message} {
			if s != "" {
				return s
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > maxDetailRunes {
		s = string(r[:maxDetailRunes])
	}
	return s
}
