package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aroton/aromcp-workflow/internal/loader"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>",
	Short: "Validate a workflow document without running it",
	Long: `Validate checks a workflow document without executing it:

- TOML/YAML syntax
- Registered step kinds and required fields
- sub_agent_task references
- Computed-field dependency cycles`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !filepath.IsAbs(path) {
		dir, err := getWorkDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, path)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("workflow file not found: %s", path)
	}

	fmt.Printf("Validating: %s\n", path)

	def, err := loader.LoadFile(path)
	if err != nil {
		fmt.Printf("\n%s %v\n", errorMark(), err)
		return fmt.Errorf("validation failed")
	}

	fmt.Printf("%s All checks passed\n", checkMark())
	fmt.Printf("\nWorkflow %q: %d step(s), %d sub-agent task(s)\n",
		def.Name, len(def.Steps), len(def.SubAgentTasks))
	for name, task := range def.SubAgentTasks {
		fmt.Printf("  - %s: %d step(s)\n", name, len(task.Steps))
	}
	return nil
}
