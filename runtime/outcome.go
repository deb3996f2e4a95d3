package runtime

import (
	"fmt"

	"github.com/justapithecus/encore/types"
)

// Process exit codes, one per outcome.
const (
	ExitCodeSuccess       = 0 // every batch valid, every row loaded
	ExitCodePartial       = 1 // skipped batches or rejected rows
	ExitCodeInvalidConfig = 2 // configuration or input roots unusable
	ExitCodeLoadFailure   = 3 // a sink failed fatally
	ExitCodeCanceled      = 4 // stopped at a batch boundary
)

// OutcomeToExitCode maps a run outcome status to a process exit code.
func OutcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitCodeSuccess
	case types.OutcomePartial:
		return ExitCodePartial
	case types.OutcomeLoadFailure:
		return ExitCodeLoadFailure
	case types.OutcomeCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeLoadFailure
	}
}

// DetermineOutcome classifies a finished run. Cancellation takes
// precedence over a load failure, which takes precedence over partial.
func DetermineOutcome(canceled bool, loadErr error, skipped, rejected int) *types.RunOutcome {
	switch {
	case canceled:
		return &types.RunOutcome{
			Status:  types.OutcomeCanceled,
			Message: "run canceled",
		}
	case loadErr != nil:
		return &types.RunOutcome{
			Status:  types.OutcomeLoadFailure,
			Message: fmt.Sprintf("load failed: %v", loadErr),
		}
	case skipped > 0 || rejected > 0:
		return &types.RunOutcome{
			Status:  types.OutcomePartial,
			Message: fmt.Sprintf("run completed with %d skipped batches and %d rejected rows", skipped, rejected),
		}
	default:
		return &types.RunOutcome{
			Status:  types.OutcomeSuccess,
			Message: "run completed successfully",
		}
	}
}
