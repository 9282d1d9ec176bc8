package classifier

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Amendment is one raise_tier(pattern=..., tier=...) declaration loaded from
// an agent workspace's policy.star file.
type Amendment struct {
	FirstToken string
	Tier       Tier
}

// AmendedClassifier wraps Classify with a workspace's pure tier-raising
// amendments, in the style of the teacher's execpolicy Starlark rule
// engine (internal/execpolicy/parser.go's prefix_rule builtin), generalized
// from "allow/deny a prefix" to "raise a first-token's tier" so a workspace
// can never weaken the built-in table, only tighten it.
type AmendedClassifier struct {
	amendments map[string]Tier
}

// LoadPolicyStar parses a policy.star source file containing zero or more
// raise_tier(pattern="terraform", tier="approve") calls.
func LoadPolicyStar(filename, source string) (*AmendedClassifier, error) {
	ac := &AmendedClassifier{amendments: map[string]Tier{}}

	raiseTier := starlark.NewBuiltin("raise_tier", func(
		thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var pattern, tierName string
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "pattern", &pattern, "tier", &tierName); err != nil {
			return nil, err
		}
		tier, err := parseTierName(tierName)
		if err != nil {
			return nil, err
		}
		if existing, ok := ac.amendments[pattern]; ok && existing > tier {
			tier = existing
		}
		ac.amendments[pattern] = tier
		return starlark.None, nil
	})

	predeclared := starlark.StringDict{"raise_tier": raiseTier}
	thread := &starlark.Thread{Name: filename}
	if _, err := starlark.ExecFile(thread, filename, source, predeclared); err != nil {
		return nil, fmt.Errorf("classifier: parse policy.star: %w", err)
	}
	return ac, nil
}

func parseTierName(name string) (Tier, error) {
	switch name {
	case "free":
		return TierFree, nil
	case "review":
		return TierReview, nil
	case "approve":
		return TierApprove, nil
	case "block":
		return TierBlock, nil
	default:
		return TierFree, fmt.Errorf("classifier: unknown tier %q", name)
	}
}

// Classify runs the built-in classifier then applies any amendment whose
// pattern matches a sub-command's first token, raising (never lowering)
// the tier.
func (ac *AmendedClassifier) Classify(cmd string) Tier {
	base := Classify(cmd)
	for _, sub := range splitChain(cmd) {
		tok, _ := firstToken(sub)
		if raised, ok := ac.amendments[tok]; ok {
			base = max(base, raised)
		}
	}
	return base
}
