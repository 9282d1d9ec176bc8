package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySingleCommands(t *testing.T) {
	cases := []struct {
		cmd  string
		tier Tier
	}{
		{"pwd", TierFree},
		{"ls -la /tmp", TierFree},
		{"git status", TierFree},
		{"git log --oneline", TierFree},
		{"python3 script.py", TierReview},
		{"git fetch", TierReview},
		{"rm /tmp/foo", TierApprove},
		{"git push origin main", TierApprove},
		{"curl http://example.com", TierApprove},
		{"echo hi > /tmp/out.txt", TierApprove},
		{"sudo rm -rf /", TierBlock},
		{"cat /etc/shadow", TierBlock},
	}
	for _, c := range cases {
		assert.Equal(t, c.tier, Classify(c.cmd), c.cmd)
	}
}

func TestClassifyChainIsMonotoneMax(t *testing.T) {
	a := "pwd"
	b := "rm /tmp/foo"
	combined := a + " && " + b
	assert.Equal(t, max(Classify(a), Classify(b)), Classify(combined))
}

func TestClassifyPipeAndOr(t *testing.T) {
	assert.Equal(t, TierApprove, Classify("ls | xargs rm"))
	assert.Equal(t, TierBlock, Classify("pwd || sudo whoami"))
}

func TestAmendedClassifierRaisesNeverLowers(t *testing.T) {
	ac, err := LoadPolicyStar("policy.star", `raise_tier(pattern="terraform", tier="approve")`)
	require.NoError(t, err)

	assert.Equal(t, TierApprove, ac.Classify("terraform apply"))
	// rm is already approve by the built-in table; an amendment can't lower it.
	ac2, err := LoadPolicyStar("policy.star", `raise_tier(pattern="rm", tier="free")`)
	require.NoError(t, err)
	assert.Equal(t, TierApprove, ac2.Classify("rm /tmp/x"))
}

func TestLoadPolicyStarRejectsUnknownTier(t *testing.T) {
	_, err := LoadPolicyStar("policy.star", `raise_tier(pattern="x", tier="nonsense")`)
	require.Error(t, err)
}
