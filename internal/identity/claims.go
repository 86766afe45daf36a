package identity

// DeriveClaims computes the claim set for an account from its current roles
// and profile fields. Claims are never persisted independently, so they
// cannot drift from role membership: every caller sees the state at the
// moment of derivation.
func DeriveClaims(account *Account, roles []Role) []Claim {
	claims := make([]Claim, 0, len(roles)+2)
	for _, role := range roles {
		claims = append(claims, Claim{Kind: ClaimRole, Value: role.Name})
	}
	if account.GivenName != "" {
		claims = append(claims, Claim{Kind: ClaimGivenName, Value: account.GivenName})
	}
	if account.FamilyName != "" {
		claims = append(claims, Claim{Kind: ClaimFamilyName, Value: account.FamilyName})
	}
	return claims
}

// HasClaim reports whether the set contains the exact (kind, value) pair.
func HasClaim(claims []Claim, kind ClaimKind, value string) bool {
	for _, c := range claims {
		if c.Kind == kind && c.Value == value {
			return true
		}
	}
	return false
}
