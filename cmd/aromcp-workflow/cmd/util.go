package cmd

import "os"

// getWorkDir resolves the effective working directory: --workdir if given, else cwd.
func getWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}
