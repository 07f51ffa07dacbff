package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
)

// Mutators are the session entry points the resolver may use to commit side effects.
type Mutators interface {
	Phase() string
	AssignedRole(player string) (models.Role, bool)
	SwapRoles(a, b string)
	NotifyPrivate(ctx context.Context, player string, ev models.GameEvent) error
	MarkNightDone(player string)
	RecordVote(player, target string)
	AppendPending(ev models.GameEvent)
}

// ActionResolver interprets a player's declared action against the hidden truth.
type ActionResolver struct {
	def *models.GameDefinition
}

// NewActionResolver resolves actions against the abilities in def.
func NewActionResolver(def *models.GameDefinition) *ActionResolver {
	return &ActionResolver{def: def}
}

func newEvent(kind models.EventKind, phase string) models.GameEvent {
	return models.GameEvent{ID: uuid.NewString(), Kind: kind, Phase: phase}
}

// Resolve commits the side effects of out. Unknown action or ability tags are
// contract violations.
func (r *ActionResolver) Resolve(ctx context.Context, player string, out models.PlayerOutput, m Mutators) error {
	switch out.Action {
	case models.ActionUseAbility:
		return r.useAbility(ctx, player, out, m)
	case models.ActionSpeak:
		ev := newEvent(models.EventSpeech, m.Phase())
		ev.Actor = player
		ev.Target = out.Target
		ev.Content = out.Content
		m.AppendPending(ev)
		return nil
	case models.ActionVote:
		if _, ok := m.AssignedRole(out.Target); !ok {
			return fmt.Errorf("%w: %s voted for %q", ErrUnknownPlayer, player, out.Target)
		}
		m.RecordVote(player, out.Target)
		ev := newEvent(models.EventVote, m.Phase())
		ev.Actor = player
		ev.Target = out.Target
		m.AppendPending(ev)
		return nil
	case models.ActionDivine:
		return nil
	default:
		return fmt.Errorf("%w: %q from %s", ErrUnknownAction, out.Action, player)
	}
}

func (r *ActionResolver) useAbility(ctx context.Context, player string, out models.PlayerOutput, m Mutators) error {
	switch out.Ability {
	case models.AbilityNone:
		m.MarkNightDone(player)
		return nil

	case models.AbilityDivination:
		// read the truth now, after any swap already resolved this night
		trueRole, ok := m.AssignedRole(out.Target)
		if !ok {
			return fmt.Errorf("%w: %s divined %q", ErrUnknownPlayer, player, out.Target)
		}
		revealed := trueRole
		if spec, ok := r.def.Spec(trueRole); ok && spec.MaskedDivinationRole != nil {
			revealed = *spec.MaskedDivinationRole
		}
		ev := newEvent(models.EventDivinationResult, m.Phase())
		ev.Actor = player
		ev.Target = out.Target
		ev.Role = revealed
		if err := m.NotifyPrivate(ctx, player, ev); err != nil {
			return err
		}
		m.MarkNightDone(player)
		logger.Log.Debugw("divination resolved", "player", player, "target", out.Target, "revealed", revealed)
		return nil

	case models.AbilitySwap:
		if out.Target == player {
			return fmt.Errorf("%w: %s tried to swap with itself", ErrUnknownPlayer, player)
		}
		if _, ok := m.AssignedRole(out.Target); !ok {
			return fmt.Errorf("%w: %s swapped with %q", ErrUnknownPlayer, player, out.Target)
		}
		m.SwapRoles(player, out.Target)
		newRole, _ := m.AssignedRole(player)

		// only the thief learns about the swap
		ev := newEvent(models.EventRoleSwapped, m.Phase())
		ev.Actor = player
		ev.Target = out.Target
		ev.Role = newRole
		if err := m.NotifyPrivate(ctx, player, ev); err != nil {
			return err
		}
		m.MarkNightDone(player)
		logger.Log.Debugw("swap resolved", "player", player, "target", out.Target)
		return nil

	default:
		return fmt.Errorf("%w: %q from %s", ErrUnknownAbility, out.Ability, player)
	}
}
