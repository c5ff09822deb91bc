// Package llm dispatches analysis prompts to model providers, retries
// failed calls, classifies failures, and turns raw model output into a
// complete HTML report.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/prompt"
)

const defaultTimeout = 180 * time.Second

// Observer receives one call per provider attempt. kind is KindNone on
// success.
type Observer interface {
	ObserveAttempt(provider string, kind Kind, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, Kind, time.Duration) {}

// Outcome is the result of analyzing one room.
type Outcome struct {
	Room     string
	Model    string
	Provider string
	Raw      string
	Shape    Shape
	HTML     string
	OK       bool
	Kind     Kind
	Err      error
	Attempts int

	PromptTokens int
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
	// Truncated is set when the prompt lost rooms or messages to fit the
	// model's budget.
	Truncated bool
}

// UserMessage is the report-facing explanation of a failed Outcome.
func (o Outcome) UserMessage() string {
	if o.OK {
		return ""
	}
	return UserMessage(o.Kind)
}

// Opts holds parameters for creating a Gateway.
type Opts struct {
	Providers    map[string]Provider
	Policy       Policy
	Timeout      time.Duration
	SafetyMargin int
	Observer     Observer
	Log          logging.Logger
}

// Gateway routes prompts to providers by model.
type Gateway struct {
	providers map[string]Provider
	policy    Policy
	timeout   time.Duration
	margin    int
	observer  Observer
	log       logging.Logger
}

// New creates a Gateway. A zero Policy means DefaultPolicy(5s).
func New(opts Opts) *Gateway {
	g := &Gateway{
		providers: opts.Providers,
		policy:    opts.Policy,
		timeout:   opts.Timeout,
		margin:    opts.SafetyMargin,
		observer:  opts.Observer,
		log:       logging.OrNop(opts.Log),
	}
	if g.providers == nil {
		g.providers = make(map[string]Provider)
	}
	if g.policy.MaxAttempts == 0 {
		g.policy = DefaultPolicy(5 * time.Second)
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.margin <= 0 {
		g.margin = prompt.DefaultSafetyMargin
	}
	if g.observer == nil {
		g.observer = nopObserver{}
	}
	return g
}

// Analyze fits b to the model's input budget, calls the provider under the
// retry policy, and formats the answer as HTML. It never returns an error:
// a failure yields an Outcome with OK unset and a failure page in HTML.
func (g *Gateway) Analyze(ctx context.Context, room string, b prompt.Bundle, modelID string) Outcome {
	out := Outcome{Room: room, Model: modelID}
	title := ReportTitle(room)
	log := g.log.With(logging.F("room", room), logging.F("model", modelID))

	m, err := ResolveModel(modelID)
	if err != nil {
		return g.fail(out, KindUnknown, err, title, log)
	}
	out.Model, out.Provider = m.ID, m.Provider

	p, ok := g.providers[m.Provider]
	if !ok {
		err := &ProviderError{Provider: m.Provider, Kind: KindUnauthenticated, Err: errors.New("no API key configured")}
		return g.fail(out, KindUnauthenticated, err, title, log)
	}

	fitted := prompt.FitToBudget(b, m.MaxInputTokens(), g.margin)
	out.PromptTokens = fitted.Tokens
	out.Truncated = fitted.Truncated || len(fitted.Dropped) > 0
	if out.Truncated {
		log.Warn("prompt compressed to fit model budget",
			logging.F("tokens", fitted.Tokens),
			logging.F("budget", m.MaxInputTokens()),
			logging.F("dropped_rooms", len(fitted.Dropped)),
			logging.F("truncated", fitted.Truncated))
	}
	req := Request{Model: m, System: fitted.SystemPrompt, User: fitted.UserPrompt()}

	start := time.Now()
	res := WithRetry(ctx, g.policy, func(ctx context.Context, attempt int) (Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		t0 := time.Now()
		resp, err := p.Complete(callCtx, req)
		kind := Classify(err)
		g.observer.ObserveAttempt(m.Provider, kind, time.Since(t0))
		if err != nil {
			log.Warn("model call failed",
				logging.F("attempt", attempt),
				logging.F("kind", string(kind)),
				logging.Err(err))
		}
		return resp, err
	})
	out.Attempts = res.Attempts
	out.Latency = time.Since(start)
	if !res.OK() {
		return g.fail(out, res.Kind, res.Err, title, log)
	}

	out.Raw = res.Value.Text
	out.InputTokens = res.Value.InputTokens
	out.OutputTokens = res.Value.OutputTokens
	trimmed := TrimScaffolding(out.Raw)
	out.Shape = ClassifyOutput(trimmed)
	out.HTML = FormatOutput(trimmed, out.Shape, title)
	out.OK = true
	log.Info("analysis complete",
		logging.F("shape", string(out.Shape)),
		logging.F("attempts", out.Attempts),
		logging.F("latency", out.Latency),
		logging.F("output_tokens", out.OutputTokens))
	return out
}

func (g *Gateway) fail(out Outcome, kind Kind, err error, title string, log logging.Logger) Outcome {
	if kind == KindNone {
		kind = KindUnknown
	}
	out.OK = false
	out.Kind = kind
	out.Err = err
	out.HTML = FailurePage(title, UserMessage(kind))
	log.Error("analysis failed", logging.F("kind", string(kind)), logging.Err(err))
	return out
}
