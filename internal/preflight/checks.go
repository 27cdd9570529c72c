// Package preflight checks that the binaries pocketdev shells out to exist.
package preflight

import (
	"os/exec"

	"github.com/peterje/pocketdev/internal/models"
	"go.uber.org/zap"
)

// Result is the outcome of CheckAll.
type Result struct {
	Tools []models.ToolStatus
	Git   bool
	Shell bool
}

// CheckAll looks up git and the session shell on PATH and logs what it finds.
func CheckAll(shell string, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	gitStatus := checkTool("git")
	shellStatus := checkTool(shell)
	res := Result{
		Tools: []models.ToolStatus{gitStatus, shellStatus},
		Git:   gitStatus.Installed,
		Shell: shellStatus.Installed,
	}

	for _, tool := range res.Tools {
		if tool.Installed {
			logger.Info("tool found", zap.String("tool", tool.Name), zap.String("path", tool.Path))
		} else {
			logger.Warn("tool not installed", zap.String("tool", tool.Name))
		}
	}
	return res
}

// checkTool reports whether name resolves. Absolute paths are checked as is.
func checkTool(name string) models.ToolStatus {
	path, err := exec.LookPath(name)
	if err != nil {
		return models.ToolStatus{Name: name, Installed: false}
	}
	return models.ToolStatus{Name: name, Installed: true, Path: path}
}
