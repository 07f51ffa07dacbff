package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
)

const defaultMaxSteps = 200

// ErrStepLimit is returned by RunToCompletion when the game is still running after maxSteps.
var ErrStepLimit = errors.New("step limit reached before the game ended")

// GameController drives games automatically through the GameManager.
type GameController struct {
	manager      *GameManager
	stepInterval time.Duration
	maxSteps     int
}

// NewGameController paces steps by stepInterval and gives up after maxSteps.
func NewGameController(manager *GameManager, stepInterval time.Duration, maxSteps int) *GameController {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &GameController{
		manager:      manager,
		stepInterval: stepInterval,
		maxSteps:     maxSteps,
	}
}

// AdvancePhase steps a game until its phase changes or it ends.
func (gc *GameController) AdvancePhase(ctx context.Context, id string) ([]*StepReport, error) {
	var reports []*StepReport
	for i := 0; i < gc.maxSteps; i++ {
		report, err := gc.step(ctx, id, i)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		if report.Finished || report.NextPhase != report.Phase {
			return reports, nil
		}
	}
	return reports, ErrStepLimit
}

// RunToCompletion steps a game until it has a result.
func (gc *GameController) RunToCompletion(ctx context.Context, id string) (*models.GameResult, int, error) {
	for i := 0; i < gc.maxSteps; i++ {
		report, err := gc.step(ctx, id, i)
		if err != nil {
			return nil, i, err
		}
		if report.Finished {
			world, err := gc.manager.World(ctx, id)
			if err != nil {
				return nil, i + 1, err
			}
			return world.Result, i + 1, nil
		}
	}
	logger.Log.Warnw("game did not finish", "session", id, "max_steps", gc.maxSteps)
	return nil, gc.maxSteps, ErrStepLimit
}

func (gc *GameController) step(ctx context.Context, id string, n int) (*StepReport, error) {
	if n > 0 && gc.stepInterval > 0 {
		timer := time.NewTimer(gc.stepInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := gc.manager.Step(ctx, id)
	if err != nil {
		if errors.Is(err, ErrContractViolation) {
			logger.Log.Errorw("stopping game", "session", id, "err", err)
		}
		return nil, fmt.Errorf("step %d of game %s: %w", n+1, id, err)
	}
	return report, nil
}
