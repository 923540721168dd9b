// Package registry maps task types to their ordered step pipelines.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukex/sniper/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Pipeline binds a task type to its ordered step units and the metadata the
// catalogue endpoint exposes. ConfigSchema, when set, is a JSON schema the
// submitted config must satisfy before a task record is created.
type Pipeline struct {
	TaskType     string
	DisplayName  string
	Description  string
	Platform     string
	Tags         []string
	TimeSavings  int // minutes of manual work one completed run saves
	ConfigSchema string
	Steps        []protocol.StepUnit
}

// TotalSteps returns the declared step count, the denominator of the
// progress function.
func (p Pipeline) TotalSteps() int {
	return len(p.Steps)
}

// Info is the catalogue projection of a pipeline.
type Info struct {
	TaskType    string   `json:"task_type"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Platform    string   `json:"platform"`
	Tags        []string `json:"tags,omitempty"`
	TimeSavings int      `json:"time_savings"`
	StepNames   []string `json:"step_names"`
}

// Registry holds the pipelines available to the engine. Selection happens by
// interface dispatch through the registered step units, not by branching on
// the task type string at execution time.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	pipelines map[string]Pipeline
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		pipelines: make(map[string]Pipeline),
	}
}

// Register adds or replaces a pipeline. Pipelines without steps are rejected.
func (r *Registry) Register(pipeline Pipeline) error {
	if pipeline.TaskType == "" {
		return fmt.Errorf("pipeline task type must not be empty")
	}

	if len(pipeline.Steps) == 0 {
		return fmt.Errorf("pipeline %q has no steps", pipeline.TaskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pipelines[pipeline.TaskType] = pipeline
	r.logger.Info("Registered pipeline", "task_type", pipeline.TaskType, "steps", len(pipeline.Steps))

	return nil
}

// Get returns the pipeline for a task type.
func (r *Registry) Get(taskType string) (Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pipeline, ok := r.pipelines[taskType]
	if !ok {
		return Pipeline{}, fmt.Errorf("task type %q not registered", taskType)
	}

	return pipeline, nil
}

// List returns catalogue entries for all registered pipelines, sorted by
// task type for stable output.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.pipelines))

	for _, pipeline := range r.pipelines {
		stepNames := make([]string, 0, len(pipeline.Steps))
		for _, step := range pipeline.Steps {
			stepNames = append(stepNames, step.Name())
		}

		infos = append(infos, Info{
			TaskType:    pipeline.TaskType,
			DisplayName: pipeline.DisplayName,
			Description: pipeline.Description,
			Platform:    pipeline.Platform,
			Tags:        pipeline.Tags,
			TimeSavings: pipeline.TimeSavings,
			StepNames:   stepNames,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].TaskType < infos[j].TaskType
	})

	return infos
}

// ValidateConfig checks a submitted config against the pipeline's declared
// schema. Pipelines without a schema accept any config.
func (r *Registry) ValidateConfig(taskType string, config map[string]any) error {
	pipeline, err := r.Get(taskType)
	if err != nil {
		return err
	}

	if pipeline.ConfigSchema == "" {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(pipeline.ConfigSchema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("config schema validation failed: %w", err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid config for %s: %s", taskType, errs[0].String())
		}

		return fmt.Errorf("invalid config for %s", taskType)
	}

	return nil
}
