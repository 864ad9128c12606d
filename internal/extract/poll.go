package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/internal/common"
)

// ErrExtractionRunning means the engine job had not settled within the poll
// budget. The job keeps running externally; a later poll or notification will
// still find its terminal state.
var ErrExtractionRunning = errors.New("extraction still running")

// WaitForCompletion polls FetchResult until the engine job settles or the
// poller's attempt budget runs out. It is the fallback bridge for deployments
// without a completion-notification channel.
func WaitForCompletion(ctx context.Context, engine Engine, poller common.Poller, jobID string, features []string) (*EngineResult, error) {
	var result *EngineResult
	err := poller.Wait(ctx, func(ctx context.Context) (bool, error) {
		res, err := engine.FetchResult(ctx, jobID, features)
		if err != nil {
			return false, err
		}
		if res.Status == constants.JobStatusInProgress {
			return false, nil
		}
		result = res
		return true, nil
	})
	if err != nil {
		if errors.Is(err, common.ErrPollBudgetExhausted) {
			return nil, fmt.Errorf("%w: engine job %s", ErrExtractionRunning, jobID)
		}
		return nil, err
	}
	return result, nil
}
