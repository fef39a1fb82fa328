package policy

import (
	"fmt"

	"github.com/ppiankov/busgate/internal/catalog"
	"github.com/ppiankov/busgate/internal/model"
)

// Authorize decides whether a category may be used at level.
//
// Order (must not be changed):
//  1. No category: deny, fail closed
//  2. Forbidden category: deny at every level
//  3. Tier above level: deny
//  4. Allow, with an interaction advisory when the category needs one
func Authorize(cat *catalog.Category, level catalog.Level) model.Decision {
	if cat == nil {
		return model.Deny(model.Uncategorized, "uncategorized operation")
	}

	if cat.Forbidden {
		d := model.Deny(model.Forbidden, "forbidden category")
		d.Category = cat.Name
		d.Tier = cat.Tier.String()
		return d
	}

	if !level.Permits(cat.Tier) {
		d := model.Deny(model.InsufficientLevel,
			fmt.Sprintf("category %q requires safety level %s (current: %s)", cat.Name, cat.Tier, level))
		d.Category = cat.Name
		d.Tier = cat.Tier.String()
		return d
	}

	d := model.Allow(fmt.Sprintf("category %q allowed at safety level %s", cat.Name, level))
	d.Category = cat.Name
	d.Tier = cat.Tier.String()
	if info, ok := model.NewInteractionInfo(*cat); ok {
		d.Interaction = &info
	}
	return d
}
