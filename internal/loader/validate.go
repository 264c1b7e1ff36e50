package loader

import (
	"fmt"

	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/state"
	"github.com/aroton/aromcp-workflow/internal/stepkind"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

// Validate performs the four structural validations spec §196 requires at load time:
// step kinds must be registered, required fields must be present, referenced
// sub_agent_task names must exist, and the computed DAG must be acyclic.
func Validate(def *workflow.Definition) error {
	if err := validateSteps(def, def.Steps); err != nil {
		return err
	}
	for name, task := range def.SubAgentTasks {
		if err := validateSteps(def, task.Steps); err != nil {
			return fmt.Errorf("sub_agent_tasks.%s: %w", name, err)
		}
		if _, err := state.NewSchema(toSchemaFields(task.ComputedFields())); err != nil {
			return fmt.Errorf("sub_agent_tasks.%s: %w", name, err)
		}
	}
	if _, err := state.NewSchema(toSchemaFields(def.ComputedFields())); err != nil {
		return err
	}
	return nil
}

// toSchemaFields converts workflow.ComputedFieldSpec to state.ComputedField. The two
// types have identical fields but are distinct named types (workflow.Definition and
// internal/state intentionally don't share a type to avoid an import cycle), so the
// conversion is element-wise.
func toSchemaFields(specs []workflow.ComputedFieldSpec) []state.ComputedField {
	out := make([]state.ComputedField, len(specs))
	for i, s := range specs {
		out[i] = state.ComputedField{Path: s.Path, Transform: s.Transform}
	}
	return out
}

// validateSteps walks steps and every nested then_steps/else_steps/body recursively,
// checking each step's kind is registered and its required fields are present
// (stepkind.Validate covers both), and that any parallel_foreach's sub_agent_task
// reference resolves against def.SubAgentTasks.
func validateSteps(def *workflow.Definition, steps []workflow.StepDef) error {
	for _, step := range steps {
		if err := stepkind.Validate(step.ID, step.Type, step.Definition); err != nil {
			return err
		}

		if step.Type == stepkind.ParallelForeach {
			taskName, _ := step.Definition["sub_agent_task"].(string)
			if _, ok := def.SubAgentTasks[taskName]; !ok {
				return werrors.NewMalformedStep(step.ID, "references unknown sub_agent_task: "+taskName)
			}
		}

		for _, key := range []string{"then_steps", "else_steps", "body"} {
			nested, ok := step.Definition[key].([]workflow.StepDef)
			if !ok || len(nested) == 0 {
				continue
			}
			if err := validateSteps(def, nested); err != nil {
				return err
			}
		}
	}
	return nil
}
