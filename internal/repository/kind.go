package repository

import (
	"strings"

	"github.com/joseph-ayodele/packet-underwriter/constants"
)

// fieldKind maps a stored kind label onto a FieldKind; unknown labels are text.
func fieldKind(s string) constants.FieldKind {
	switch k := constants.FieldKind(strings.ToLower(strings.TrimSpace(s))); k {
	case constants.KindMoney, constants.KindDate, constants.KindEnum:
		return k
	default:
		return constants.KindText
	}
}
