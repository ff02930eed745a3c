package core

import (
	"time"

	"github.com/snow-ghost/readiness/pkg/chat"
)

// Category is one of the eight combo-matrix capability categories
type Category string

const (
	CategorySuppress     Category = "suppress"
	CategorySingleTool   Category = "single_tool"
	CategoryToolSelect   Category = "tool_select"
	CategoryParamExtract Category = "param_extract"
	CategoryClarify      Category = "clarify"
	CategoryMultiTool    Category = "multi_tool"
	CategoryReasoning    Category = "reasoning"
	CategoryRefusal      Category = "refusal"
)

// Tier is a difficulty tier of the combo matrix
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// Tiers lists the tiers in weight order
var Tiers = []Tier{TierSimple, TierMedium, TierComplex}

// Action is the action a model decides to take for a turn
type Action string

const (
	ActionRespond          Action = "respond"
	ActionCallTool         Action = "call_tool"
	ActionAskClarification Action = "ask_clarification"
	ActionMultiStep        Action = "multi_step"
)

// RequiresTool reports whether the action implies tool execution
func (a Action) RequiresTool() bool {
	return a == ActionCallTool || a == ActionMultiStep
}

// TestCase is an immutable combo-matrix definition
type TestCase struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Category       Category               `json:"category"`
	Tier           Tier                   `json:"tier"`
	Prompt         string                 `json:"prompt"`
	ExpectedAction Action                 `json:"expected_action"`
	ExpectedTools  []string               `json:"expected_tools,omitempty"`   // ordered for multi_step
	ExpectedParams map[string]interface{} `json:"expected_params,omitempty"`  // checked against the first expected tool
	ForbiddenTools []string               `json:"forbidden_tools,omitempty"`  // refusal: must never be invoked
	Tools          []chat.Tool            `json:"tools"`                      // schemas offered to the models
}

// TestResult is one outcome of a TestCase against a (main, executor) pair
type TestResult struct {
	TestID          string        `json:"test_id"`
	Category        Category      `json:"category"`
	Tier            Tier          `json:"tier"`
	Passed          bool          `json:"passed"`
	MainCorrect     bool          `json:"main_correct"`
	RequiresTool    bool          `json:"requires_tool"`
	ExecutorCorrect bool          `json:"executor_correct"`
	DecidedAction   Action        `json:"decided_action,omitempty"`
	ChosenTool      string        `json:"chosen_tool,omitempty"`
	ToolsInvoked    []string      `json:"tools_invoked,omitempty"`
	Latency         time.Duration `json:"latency"`
	Error           string        `json:"error,omitempty"`
	Details         string        `json:"details,omitempty"`
	TimedOut        bool          `json:"timed_out"`
	Skipped         bool          `json:"skipped"`
}

// Valid reports whether the result was actually executed to completion
func (r TestResult) Valid() bool { return !r.Skipped && !r.TimedOut }

// ComboScore aggregates all results of one (main, executor) pair
type ComboScore struct {
	MainModel      string           `json:"main_model"`
	ExecutorModel  string           `json:"executor_model"`
	CategoryScores map[Category]int `json:"category_scores"`
	TierScores     map[Tier]float64 `json:"tier_scores"`
	MainScore      int              `json:"main_score"`
	ExecutorScore  int              `json:"executor_score"`
	OverallScore   int              `json:"overall_score"`
	TotalTests     int              `json:"total_tests"`
	SkippedTests   int              `json:"skipped_tests"`
	TimedOutTests  int              `json:"timed_out_tests"`
	MainExcluded   bool             `json:"main_excluded"`
	Results        []TestResult     `json:"results"`
	TestedAt       time.Time        `json:"tested_at"`
}

// Key identifies the pair
func (c ComboScore) Key() string { return c.MainModel + "+" + c.ExecutorModel }

// Pattern is a behavioral pattern extracted from a teacher transcript
type Pattern struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ToolSequence []string `json:"tool_sequence,omitempty"`
	Hints        []string `json:"hints"`
	SourceCase   string   `json:"source_case"`
}

// DistillationResult is the outcome of one teacher→student transfer attempt
type DistillationResult struct {
	TeacherModel  string    `json:"teacher_model"`
	StudentModel  string    `json:"student_model"`
	Capability    string    `json:"capability"`
	TeacherScore  int       `json:"teacher_score"`
	StudentBefore int       `json:"student_before"`
	StudentAfter  int       `json:"student_after"`
	Improvement   int       `json:"improvement"`
	Level         int       `json:"level"`
	Prosthetic    string    `json:"prosthetic"`
	Patterns      []Pattern `json:"patterns"`
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
}

// ProstheticEntry is a persisted compensation prompt for one model capability
type ProstheticEntry struct {
	ModelID              string         `json:"model_id"`
	Capability           string         `json:"capability"`
	Prompt               string         `json:"prompt"`
	Level                int            `json:"level"`
	Source               string         `json:"source"`
	Verified             bool           `json:"verified"`
	CategoryImprovements map[string]int `json:"category_improvements,omitempty"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Attribution names which side of a pair a readiness probe result is attributed to
type Attribution string

const (
	AttributionMain     Attribution = "main"
	AttributionExecutor Attribution = "executor"
	AttributionLoop     Attribution = "loop"
)

// ProbeResult is the outcome of one readiness probe
type ProbeResult struct {
	Probe       string        `json:"probe"`
	Category    string        `json:"category"`
	Phase       string        `json:"phase"` // qualifying | discovery
	Passed      bool          `json:"passed"`
	Score       int           `json:"score"`
	Details     string        `json:"details,omitempty"`
	Error       string        `json:"error,omitempty"`
	Attribution Attribution   `json:"attribution,omitempty"`
	Latency     time.Duration `json:"latency"`
}

// ReadinessStatus is the terminal state of an assessment
type ReadinessStatus string

const (
	ReadinessCertified    ReadinessStatus = "certified"
	ReadinessDisqualified ReadinessStatus = "disqualified"
	ReadinessFailed       ReadinessStatus = "failed" // discovery reached, below threshold
)

// ReadinessReport is the result of a staged readiness assessment
type ReadinessReport struct {
	RunID          string          `json:"run_id"`
	Mode           string          `json:"mode"`
	MainModel      string          `json:"main_model"`
	ExecutorModel  string          `json:"executor_model,omitempty"`
	Status         ReadinessStatus `json:"status"`
	DisqualifiedAt string          `json:"disqualified_at,omitempty"`
	CategoryScores map[string]int  `json:"category_scores,omitempty"`
	OverallScore   int             `json:"overall_score"`
	Passed         bool            `json:"passed"`
	Probes         []ProbeResult   `json:"probes"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// ModelProfile is the persisted readiness profile of a model
type ModelProfile struct {
	ModelID        string        `json:"model_id"`
	OverallScore   int           `json:"overall_score"`
	Certified      bool          `json:"certified"`
	DisqualifiedAt string        `json:"disqualified_at,omitempty"`
	ProbeResults   []ProbeResult `json:"probe_results"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
