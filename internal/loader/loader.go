// Package loader parses a WorkflowDefinition from a TOML or YAML document (spec §1:
// "the loader is an external collaborator — a pure function bytes -> WorkflowDefinition";
// spec §196: "the loader returns a parsed tree; the engine does not prescribe the
// surface syntax"). It also performs the structural validations spec §196 requires at
// load time: registered step kinds, required fields, sub_agent_task references that
// resolve, and an acyclic computed DAG.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aroton/aromcp-workflow/internal/stepkind"
	"github.com/aroton/aromcp-workflow/internal/transform"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

// Format selects the surface syntax a document is decoded from.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// DetectFormat picks a Format from a file extension, defaulting to TOML for anything
// that isn't recognizably YAML.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// LoadFile reads path and parses it as a WorkflowDefinition, inferring the format from
// its extension.
func LoadFile(path string) (*workflow.Definition, error) {
	return LoadFileAs(path, DetectFormat(path))
}

// LoadFileAs reads path and parses it as a WorkflowDefinition in the given format.
func LoadFileAs(path string, format Format) (*workflow.Definition, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, format)
}

// Parse decodes raw document bytes into a WorkflowDefinition and validates it.
func Parse(data []byte, format Format) (*workflow.Definition, error) {
	raw, err := decode(data, format)
	if err != nil {
		return nil, err
	}
	def, err := buildDefinition(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func decode(data []byte, format Format) (map[string]any, error) {
	var raw map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode YAML workflow document: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("decode TOML workflow document: %w", err)
		}
	}
	return raw, nil
}

// buildDefinition converts the generic document tree produced by decode into the
// typed WorkflowDefinition of spec §3.
func buildDefinition(raw map[string]any) (*workflow.Definition, error) {
	def := &workflow.Definition{
		Name:          stringField(raw, "name"),
		Version:       stringField(raw, "version"),
		Inputs:        parseInputs(asMap(raw["inputs"])),
		DefaultState:  asMap(raw["default_state"]),
		Computed:      parseComputed(raw["state_schema"]),
		SubAgentTasks: make(map[string]*workflow.SubAgentTask),
	}

	steps, err := parseSteps(raw["steps"])
	if err != nil {
		return nil, err
	}
	def.Steps = steps

	tasks, err := parseSubAgentTasks(asMap(raw["sub_agent_tasks"]))
	if err != nil {
		return nil, err
	}
	def.SubAgentTasks = tasks

	if def.Name == "" {
		return nil, fmt.Errorf("workflow document missing required field \"name\"")
	}
	return def, nil
}

func parseInputs(raw map[string]any) map[string]workflow.InputSpec {
	out := make(map[string]workflow.InputSpec, len(raw))
	for name, v := range raw {
		m := asMap(v)
		out[name] = workflow.InputSpec{
			Type:        stringField(m, "type"),
			Required:    boolField(m, "required"),
			Default:     m["default"],
			Description: stringField(m, "description"),
			From:        stringField(m, "from"),
		}
	}
	return out
}

// parseComputed extracts state_schema.computed: a mapping field-path -> transform
// descriptor (spec §3).
func parseComputed(raw any) map[string]transform.Descriptor {
	schema := asMap(raw)
	computed := asMap(schema["computed"])
	return parseTransforms(computed)
}

// parseTransforms keys each descriptor by its full "computed.<name>" path: the state
// package's Schema (internal/state/schema.go, state.go) stores and matches computed
// field paths in that fully-qualified form, and strips the "computed." prefix only when
// writing the resolved value back into the computed tier.
func parseTransforms(raw map[string]any) map[string]transform.Descriptor {
	out := make(map[string]transform.Descriptor, len(raw))
	for name, v := range raw {
		out["computed."+name] = parseTransform(asMap(v))
	}
	return out
}

func parseTransform(m map[string]any) transform.Descriptor {
	onErr := transform.OnErrorPropagate
	if s := stringField(m, "on_error"); s == string(transform.OnErrorUseFallback) {
		onErr = transform.OnErrorUseFallback
	}
	return transform.Descriptor{
		From:       stringSliceField(m, "from"),
		Expression: stringField(m, "expression"),
		OnError:    onErr,
		Fallback:   m["fallback"],
	}
}

// parseSteps converts a raw step list into []workflow.StepDef, recursing into any
// nested step bodies (then_steps/else_steps/body) so they land as []workflow.StepDef
// values directly in the parent's Definition map, matching what internal/processor's
// toStepDefs expects to find there.
func parseSteps(raw any) ([]workflow.StepDef, error) {
	list := asMapSlice(raw)
	out := make([]workflow.StepDef, 0, len(list))
	for i, m := range list {
		step, err := parseStep(m)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		out = append(out, step)
	}
	return out, nil
}

func parseStep(m map[string]any) (workflow.StepDef, error) {
	id := stringField(m, "id")
	if id == "" {
		return workflow.StepDef{}, fmt.Errorf("step missing id")
	}
	kind := stepkind.Kind(stringField(m, "type"))

	def := asMap(m["definition"])
	resolved, err := resolveNestedBodies(def)
	if err != nil {
		return workflow.StepDef{}, fmt.Errorf("step %q: %w", id, err)
	}

	return workflow.StepDef{ID: id, Type: kind, Definition: resolved}, nil
}

// resolveNestedBodies parses the then_steps/else_steps/body keys of a step definition
// (conditional, while_loop, foreach; spec §4.2) into []workflow.StepDef, leaving every
// other key as the raw decoded value.
func resolveNestedBodies(def map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(def))
	for k, v := range def {
		switch k {
		case "then_steps", "else_steps", "body":
			nested, err := parseSteps(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = nested
		default:
			out[k] = v
		}
	}
	return out, nil
}

func parseSubAgentTasks(raw map[string]any) (map[string]*workflow.SubAgentTask, error) {
	out := make(map[string]*workflow.SubAgentTask, len(raw))
	for name, v := range raw {
		m := asMap(v)
		steps, err := parseSteps(m["steps"])
		if err != nil {
			return nil, fmt.Errorf("sub_agent_tasks.%s: %w", name, err)
		}
		out[name] = &workflow.SubAgentTask{
			Name:         name,
			Inputs:       parseInputs(asMap(m["inputs"])),
			Computed:     parseComputed(m["state_schema"]),
			DefaultState: asMap(m["default_state"]),
			Steps:        steps,
		}
	}
	return out, nil
}
