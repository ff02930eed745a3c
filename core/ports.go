package core

import (
	"context"

	"github.com/snow-ghost/readiness/pkg/chat"
)

// Gateway performs chat completions for a model identifier
type Gateway interface {
	Chat(ctx context.Context, model string, req chat.ChatRequest) (chat.ChatResponse, error)
}

// LoadOptions configures a model load on the inference runtime
type LoadOptions struct {
	ContextLength int
}

// ModelRuntime controls which models are resident in the shared inference runtime
type ModelRuntime interface {
	ListLoaded(ctx context.Context) ([]string, error)
	Unload(ctx context.Context, model string) error
	Load(ctx context.Context, model string, opts LoadOptions) error
}

// Store persists evaluation output. Callers treat failures as non-fatal.
type Store interface {
	SaveComboScore(ctx context.Context, score ComboScore) error
	ListComboScores(ctx context.Context, mainModel string) ([]ComboScore, error)
	SaveProsthetic(ctx context.Context, entry ProstheticEntry) error
	GetProsthetic(ctx context.Context, modelID, capability string) (*ProstheticEntry, error)
	SaveProstheticConfig(ctx context.Context, cfg ProstheticConfig) error
	GetProstheticConfig(ctx context.Context, modelID string) (*ProstheticConfig, error)
	GetProfile(ctx context.Context, modelID string) (*ModelProfile, error)
	SaveProfile(ctx context.Context, profile ModelProfile) error
	UpdateProbeResults(ctx context.Context, modelID string, results []ProbeResult) error
}

// Broadcaster receives progress events. Publish must never block.
type Broadcaster interface {
	Publish(ev ProgressEvent)
}

// NopBroadcaster drops every event
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(ProgressEvent) {}

// Observation is what a classifier sees of one routed turn
type Observation struct {
	DecidedAction Action
	ChosenTool    string
	Response      string
	ToolCalls     []chat.ToolCall
}

// Verdict is a classifier outcome
type Verdict struct {
	Passed  bool
	Score   int
	Details string
}

// Classifier judges a routed turn
type Classifier interface {
	Evaluate(obs Observation) Verdict
}

// ClassifierFunc adapts a function to Classifier
type ClassifierFunc func(obs Observation) Verdict

func (f ClassifierFunc) Evaluate(obs Observation) Verdict { return f(obs) }

// Request metadata set by the Intent Router so backends can tell the turns apart
const (
	MetaStage    = "stage"
	StageDecide  = "decide"
	StageExecute = "execute"
	StageSingle  = "single"
)
