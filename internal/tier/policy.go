package tier

// Profile is the capability set a sender's tier grants for downstream
// permission-scoped prompting and tool use.
type Profile struct {
	Tier Tier
	// Tools allows the backend to invoke tools on the sender's behalf.
	Tools bool
	// Admin allows administrative commands such as forced restarts.
	Admin bool
}

// Decision is the outcome of evaluating a sender against the policy.
type Decision struct {
	Allow   bool
	Profile Profile
}

// ProfileFor derives the capability profile for a tier.
func ProfileFor(t Tier) Profile {
	switch t {
	case Admin:
		return Profile{Tier: t, Tools: true, Admin: true}
	case Partner, Family:
		return Profile{Tier: t, Tools: true}
	case Favorite, Bot:
		return Profile{Tier: t}
	default:
		return Profile{Tier: Unknown}
	}
}

// Evaluate is the pure direct-message gate: trusted tiers are allowed,
// everything else is denied. Callers must produce no observable side
// effects on denial.
func Evaluate(t Tier) Decision {
	return Decision{Allow: t.Trusted(), Profile: ProfileFor(t)}
}
