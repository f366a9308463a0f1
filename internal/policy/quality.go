package policy

import (
	"strings"

	"github.com/selamnet/selam/internal/entity"
)

// Quality reason codes recorded on entities that fail network-share
// validation. Machine-readable, stable, rendered by the (external) UI.
const (
	ReasonMissingRequiredFields = "missing_required_fields"
	ReasonMissingContactChannel = "missing_contact_channel"
	ReasonMissingLocation       = "missing_location"
	ReasonHiddenEntity          = "hidden_entity"
)

// QualityCheck runs the network-share validators for an entity and returns
// the deterministic, ordered list of reason codes. An empty list means the
// entity is fit to share.
func QualityCheck(e *entity.Entity) []string {
	reasons := []string{}

	if !e.Visible || e.Status == entity.StatusHidden {
		reasons = append(reasons, ReasonHiddenEntity)
	}

	switch e.Kind {
	case entity.KindPin:
		if blank(e.Attrs["name"]) {
			reasons = append(reasons, ReasonMissingRequiredFields)
		}
		if blank(e.Attrs["lat"]) || blank(e.Attrs["lon"]) {
			reasons = append(reasons, ReasonMissingLocation)
		}

	case entity.KindBusiness:
		if blank(e.Attrs["name"]) {
			reasons = append(reasons, ReasonMissingRequiredFields)
		}
		if blank(e.Attrs["phone"]) {
			reasons = append(reasons, ReasonMissingContactChannel)
		}

	case entity.KindService:
		// A shareable directory entry needs a name, a category or details,
		// and at least one contact channel.
		if blank(e.Attrs["name"]) || (blank(e.Attrs["category"]) && blank(e.Attrs["details"])) {
			reasons = append(reasons, ReasonMissingRequiredFields)
		}
		if blank(e.Attrs["phone"]) && blank(e.Attrs["email"]) && blank(e.Attrs["whatsapp"]) {
			reasons = append(reasons, ReasonMissingContactChannel)
		}

	case entity.KindPromise, entity.KindChat:
		// No extra quality gates beyond visibility.
	}

	return reasons
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
