package api

import (
	"fmt"
	"strings"

	"github.com/tepel-chen/demil/internal/fault"
	"github.com/tepel-chen/demil/internal/pack"
)

// articlePrefix is tried in front of the requested name when no mission has
// that exact name.
const articlePrefix = "The "

// matchMission resolves a mission by display name. An exact case-insensitive
// match wins, then a match with the article prefixed, then a unique substring
// match. More than one candidate at the deciding stage is an error.
func matchMission(name string, refs []pack.MissionRef) (pack.MissionRef, error) {
	stages := []func(display string) bool{
		func(display string) bool { return strings.EqualFold(display, name) },
		func(display string) bool { return strings.EqualFold(display, articlePrefix+name) },
		func(display string) bool {
			return strings.Contains(strings.ToLower(display), strings.ToLower(name))
		},
	}

	for _, matches := range stages {
		var found []pack.MissionRef
		for _, ref := range refs {
			if matches(ref.Mission.DisplayName) {
				found = append(found, ref)
			}
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			return pack.MissionRef{}, fault.Capabilityf("Mission name %q is ambiguous: %s", name, describeMatches(found))
		}
	}
	return pack.MissionRef{}, fault.NotFoundf("Mission not found: %s", name)
}

func describeMatches(refs []pack.MissionRef) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = fmt.Sprintf("%s (%s)", ref.Mission.DisplayName, ref.Mission.ID)
	}
	return strings.Join(parts, ", ")
}
