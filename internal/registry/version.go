package registry

import "strings"

// VersionRule maps client versions starting with Prefix to a baseline Tag.
type VersionRule struct {
	Prefix string `json:"prefix"`
	Tag    string `json:"tag"`
}

// VersionRules picks a baseline tag for a client version. The first matching
// rule wins; no match selects the default (empty) tag.
type VersionRules []VersionRule

// DefaultVersionRules: clients 1.6 and 1.7 ship the 1.6 stock programs,
// everything else ships the original set.
var DefaultVersionRules = VersionRules{
	{Prefix: "1.6", Tag: "1.6"},
	{Prefix: "1.7", Tag: "1.6"},
}

// Tag returns the baseline tag for appVersion.
func (r VersionRules) Tag(appVersion string) string {
	for _, rule := range r {
		if rule.Prefix != "" && strings.HasPrefix(appVersion, rule.Prefix) {
			return rule.Tag
		}
	}
	return ""
}
