// Package tier assigns trust levels to sender identities and derives the
// permission profile each level grants. The router consumes these
// decisions uniformly; no other component re-derives trust.
package tier

import "strings"

// Tier is a discrete trust level assigned to a sender identity.
type Tier string

const (
	// Admin is the operator of the system.
	Admin Tier = "admin"
	// Partner is a fully trusted household member.
	Partner Tier = "partner"
	// Family is a trusted family contact.
	Family Tier = "family"
	// Favorite is a trusted friend contact.
	Favorite Tier = "favorite"
	// Bot is another automated agent allowed to converse.
	Bot Tier = "bot"
	// Unknown is any identity the address book cannot vouch for.
	// Unknown senders are dropped silently in direct conversations.
	Unknown Tier = "unknown"
)

// Parse maps a stored string to a Tier, defaulting to Unknown.
func Parse(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Admin:
		return Admin
	case Partner:
		return Partner
	case Family:
		return Family
	case Favorite:
		return Favorite
	case Bot:
		return Bot
	default:
		return Unknown
	}
}

// Trusted reports whether the tier may open or join conversations.
func (t Tier) Trusted() bool {
	switch t {
	case Admin, Partner, Family, Favorite, Bot:
		return true
	default:
		return false
	}
}

// String returns the tier's stable string form.
func (t Tier) String() string {
	return string(t)
}
