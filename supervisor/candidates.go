package supervisor

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Env holds the inputs of interpreter discovery.
type Env struct {
	Configured string // explicit interpreter from configuration
	Override   string // AE_MCP_PYTHON
	Python     string // PYTHON
	ProjectDir string
	Home       string
	GOOS       string
}

// EnvFromOS reads discovery inputs from the process environment.
func EnvFromOS(configured, projectDir string) Env {
	home, _ := os.UserHomeDir()
	return Env{
		Configured: configured,
		Override:   os.Getenv("AE_MCP_PYTHON"),
		Python:     os.Getenv("PYTHON"),
		ProjectDir: projectDir,
		Home:       home,
		GOOS:       runtime.GOOS,
	}
}

// Candidates lists interpreters in priority order without duplicates:
// explicit overrides, the project's virtualenv, the pyenv shim, then bare
// interpreter names resolved through PATH.
func Candidates(env Env) []string {
	list := []string{env.Configured, env.Override, env.Python}
	if dir := strings.TrimSpace(env.ProjectDir); dir != "" {
		if env.GOOS == "windows" {
			list = append(list, filepath.Join(dir, ".venv", "Scripts", "python.exe"))
		} else {
			list = append(list, filepath.Join(dir, ".venv", "bin", "python"))
		}
	}
	if home := strings.TrimSpace(env.Home); home != "" {
		list = append(list, filepath.Join(home, ".pyenv", "shims", "python3"))
	}
	list = append(list, "python3", "python")

	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, candidate := range list {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}
