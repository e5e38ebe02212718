package event

import (
	"regexp"
	"strings"
)

// profileURLPattern matches twitter.com / x.com profile URLs.
var profileURLPattern = regexp.MustCompile(`(?i)(?:twitter\.com|x\.com)/(@?\w+)`)

// NormalizeHandle extracts the canonical account handle from raw input:
// a leading @ is stripped and profile URLs are reduced to their handle.
// Returns the empty string when no handle can be derived.
func NormalizeHandle(rawInput string) string {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return ""
	}
	if match := profileURLPattern.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimPrefix(match[1], "@")
	}
	return strings.TrimPrefix(trimmed, "@")
}

// NominationTarget is the validated, normalized payload of a submission.
type NominationTarget struct {
	User             string
	Link             string
	Text             string
	IsDeletedContent bool
}

// MergeKey returns the case-insensitive key used to fold duplicate user-mode
// submissions, or the empty string when the target does not auto-merge.
func (t NominationTarget) MergeKey() string {
	return strings.ToLower(t.User)
}

// normalizeTarget validates the raw submission against the category mode and
// produces the normalized target stored on the nomination row.
func normalizeTarget(mode NominationMode, req NominationRequest) (NominationTarget, error) {
	link := strings.TrimSpace(req.NominatedLink)
	text := strings.TrimSpace(req.NominatedText)

	switch mode {
	case ModeUser:
		handle := NormalizeHandle(req.NominatedUser)
		if handle == "" {
			return NominationTarget{}, newRejection(KindInvalidTarget, "debes introducir un usuario")
		}
		return NominationTarget{User: handle}, nil

	case ModeLink:
		if req.IsDeletedContent {
			if text == "" {
				return NominationTarget{}, newRejection(KindInvalidTarget, "debes describir el contenido borrado")
			}
			return NominationTarget{Text: text, IsDeletedContent: true}, nil
		}
		if link == "" {
			return NominationTarget{}, newRejection(KindInvalidTarget, "debes introducir un enlace")
		}
		return NominationTarget{Link: link}, nil

	case ModeText:
		if text == "" {
			return NominationTarget{}, newRejection(KindInvalidTarget, "debes introducir una descripción")
		}
		return NominationTarget{Text: text}, nil

	case ModeLinkOrText:
		if link == "" && text == "" {
			return NominationTarget{}, newRejection(KindInvalidTarget, "debes introducir un enlace o una descripción")
		}
		return NominationTarget{Link: link, Text: text}, nil

	default:
		return NominationTarget{}, newRejection(KindInvalidTarget, "modo de nominación desconocido")
	}
}
