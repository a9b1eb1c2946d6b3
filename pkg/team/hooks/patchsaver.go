package hooks

import (
	"os"
	"path/filepath"

	"github.com/conclave-dev/conclave/pkg/logger"
	"github.com/conclave-dev/conclave/pkg/team"
)

// PatchSaverHook writes the final model_patch (team.TeamInfo.Submission) to
// <output_dir>/<problem_id>/<problem_id>.pred on every instance completion,
// per spec.md §6.3's file layout.
type PatchSaverHook struct {
	OutputDir string
}

func NewPatchSaverHook(outputDir string) *PatchSaverHook {
	return &PatchSaverHook{OutputDir: outputDir}
}

func (h *PatchSaverHook) OnInit()                                         {}
func (h *PatchSaverHook) OnRunStart()                                     {}
func (h *PatchSaverHook) OnInstanceStart(int, team.ProblemStatement)      {}
func (h *PatchSaverHook) OnStepDone(team.StepOutput, team.TeamInfo)       {}
func (h *PatchSaverHook) OnRunDone([]team.StepOutput, team.TeamInfo)      {}

func (h *PatchSaverHook) OnInstanceCompleted(result team.InstanceResult) {
	if result.Submission == "" {
		return
	}
	dir := filepath.Join(h.OutputDir, result.ProblemID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.ErrorCF("hooks", "failed to create instance dir for patch", map[string]any{
			"problem_id": result.ProblemID, "error": err.Error(),
		})
		return
	}
	path := filepath.Join(dir, result.ProblemID+".pred")
	if err := os.WriteFile(path, []byte(result.Submission), 0o644); err != nil {
		logger.ErrorCF("hooks", "failed to write prediction file", map[string]any{
			"problem_id": result.ProblemID, "error": err.Error(),
		})
	}
}
