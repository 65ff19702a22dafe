package sandbox

import "strings"

const (
	// profileSuffix is appended to the workspace id to form the
	// AppContainer profile name.
	profileSuffix = "_workspace"

	// maxProfileNameLen is the AppContainer moniker length limit.
	maxProfileNameLen = 64

	defaultProfileID = "default"
)

// ProfileName derives the AppContainer profile name for a workspace id.
// The result is stable for a given id so that an existing profile is
// reused across launches. Characters outside [A-Za-z0-9._-] are replaced
// with '-' and the id is truncated to keep the name within the
// AppContainer length limit.
func ProfileName(id string) string {
	if id == "" {
		id = defaultProfileID
	}

	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	name := b.String()
	if limit := maxProfileNameLen - len(profileSuffix); len(name) > limit {
		name = name[:limit]
	}
	return name + profileSuffix
}
