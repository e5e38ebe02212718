package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase enumerates the stages of the awards event.
type Phase string

const (
	// PhaseProposals collects special-category proposals before nominations open.
	PhaseProposals Phase = "proposals"
	// PhaseNominations accepts raw nominations from the public.
	PhaseNominations Phase = "nominations"
	// PhaseCuration is the closed window where nominations become finalists.
	PhaseCuration Phase = "curation"
	// PhaseVoting accepts one vote per user per category.
	PhaseVoting Phase = "voting"
	// PhaseGala covers the pre-gala wait and the live ceremony.
	PhaseGala Phase = "gala"
	// PhaseResults publishes the final standings.
	PhaseResults Phase = "results"
)

// ErrInvalidPhase indicates a phase value outside the known set.
var ErrInvalidPhase = errors.New("event: invalid phase")

var phaseRanks = map[Phase]int{
	PhaseProposals:   0,
	PhaseNominations: 1,
	PhaseCuration:    2,
	PhaseVoting:      3,
	PhaseGala:        4,
	PhaseResults:     5,
}

// ParsePhase validates raw input and returns a Phase.
func ParsePhase(rawInput string) (Phase, error) {
	candidate := Phase(strings.ToLower(strings.TrimSpace(rawInput)))
	if _, ok := phaseRanks[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, rawInput)
	}
	return candidate, nil
}

// String returns the phase identifier.
func (p Phase) String() string {
	return string(p)
}

// Rank exposes the position of the phase in the canonical progression.
func (p Phase) Rank() int {
	return phaseRanks[p]
}

// CanNominate reports whether nomination submissions are open.
func CanNominate(phase Phase) bool {
	return phase == PhaseNominations
}

// CanVote reports whether vote casting is open.
func CanVote(phase Phase) bool {
	return phase == PhaseVoting
}

// PhaseInfo carries the display metadata derived from the current phase.
type PhaseInfo struct {
	Phase           Phase
	Label           string
	Description     string
	CountdownTarget *time.Time
	IsLive          bool
}

// ComputePhase resolves the current phase from the event configuration and the
// supplied wall-clock time. Resolution order, each step short-circuiting the
// rest: ResultsPublic, ForcePhase, then the date ladder evaluated as an
// ordered cascade of inclusive lower-bound tests so that inconsistent dates
// degrade into the latest matching phase. GalaActive never enters the
// computation; it is an informational flag surfaced alongside the config.
func ComputePhase(cfg EventConfig, now time.Time) Phase {
	if cfg.ResultsPublic {
		return PhaseResults
	}
	if cfg.ForcePhase != nil {
		return *cfg.ForcePhase
	}
	switch {
	case !now.Before(cfg.GalaStart):
		return PhaseGala
	case !now.Before(cfg.VotingEnd):
		return PhaseGala
	case !now.Before(cfg.CurationEnd):
		return PhaseVoting
	case !now.Before(cfg.NominationsEnd):
		return PhaseCuration
	default:
		return PhaseNominations
	}
}

// ComputePhaseInfo derives the countdown target, liveness flag and display
// copy for the resolved phase. For forced phases the per-phase static rule
// applies and the configured dates are ignored except as countdown targets.
func ComputePhaseInfo(cfg EventConfig, now time.Time) PhaseInfo {
	if cfg.ResultsPublic {
		return PhaseInfo{
			Phase:       PhaseResults,
			Label:       "🏆 RESULTADOS FINALES",
			Description: "Los premios han concluido",
		}
	}
	if cfg.ForcePhase != nil {
		return staticPhaseInfo(*cfg.ForcePhase, cfg)
	}
	switch {
	case !now.Before(cfg.GalaStart):
		return PhaseInfo{
			Phase:       PhaseGala,
			Label:       "🔴 GALA EN DIRECTO",
			Description: "¡La ceremonia está en marcha!",
			IsLive:      true,
		}
	case !now.Before(cfg.VotingEnd):
		// Pre-gala wait: reported as gala, counting down to the ceremony.
		target := cfg.GalaStart
		return PhaseInfo{
			Phase:           PhaseGala,
			Label:           "LA GALA COMIENZA EN",
			Description:     "Votación cerrada. Prepárate para la gran noche.",
			CountdownTarget: &target,
		}
	case !now.Before(cfg.CurationEnd):
		target := cfg.VotingEnd
		return PhaseInfo{
			Phase:           PhaseVoting,
			Label:           "LA VOTACIÓN FINAL TERMINA EN",
			Description:     "¡Vota por tus favoritos!",
			CountdownTarget: &target,
		}
	case !now.Before(cfg.NominationsEnd):
		return PhaseInfo{
			Phase:       PhaseCuration,
			Label:       "CERRADO: PROCESANDO FINALISTAS",
			Description: "Estamos revisando todas las nominaciones...",
		}
	default:
		target := cfg.NominationsEnd
		return PhaseInfo{
			Phase:           PhaseNominations,
			Label:           "CIERRE DE NOMINACIONES EN",
			Description:     "¡Nomina a tus favoritos antes de que sea tarde!",
			CountdownTarget: &target,
		}
	}
}

func staticPhaseInfo(phase Phase, cfg EventConfig) PhaseInfo {
	switch phase {
	case PhaseProposals:
		target := cfg.NominationsStart
		return PhaseInfo{
			Phase:           PhaseProposals,
			Label:           "🎯 PROPÓN LA CATEGORÍA ESPECIAL",
			Description:     "Las nominaciones abren pronto",
			CountdownTarget: &target,
		}
	case PhaseNominations:
		target := cfg.NominationsEnd
		return PhaseInfo{
			Phase:           PhaseNominations,
			Label:           "CIERRE DE NOMINACIONES EN",
			Description:     "¡Nomina a tus favoritos!",
			CountdownTarget: &target,
		}
	case PhaseCuration:
		return PhaseInfo{
			Phase:       PhaseCuration,
			Label:       "CERRADO: PROCESANDO FINALISTAS",
			Description: "Revisando nominaciones...",
		}
	case PhaseVoting:
		target := cfg.VotingEnd
		return PhaseInfo{
			Phase:           PhaseVoting,
			Label:           "LA VOTACIÓN FINAL TERMINA EN",
			Description:     "¡Vota por tus favoritos!",
			CountdownTarget: &target,
		}
	case PhaseGala:
		return PhaseInfo{
			Phase:       PhaseGala,
			Label:       "🔴 GALA EN DIRECTO",
			Description: "¡La ceremonia está en marcha!",
			IsLive:      true,
		}
	case PhaseResults:
		return PhaseInfo{
			Phase:       PhaseResults,
			Label:       "🏆 RESULTADOS FINALES",
			Description: "Los premios han concluido",
		}
	default:
		return PhaseInfo{Phase: phase}
	}
}
