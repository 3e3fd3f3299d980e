package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyStore_MissingFileUsesDefault(t *testing.T) {
	store := NewPolicyStore(t.TempDir())

	policy, err := store.Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), policy)
}

func TestPolicyStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "policies")
	store := NewPolicyStore(dir)

	custom := DefaultPolicy()
	custom.DeadAir.MaxCommunicationFit = 0.25
	custom.HumorClash.StylePairs = append(custom.HumorClash.StylePairs, [2]string{"A", "D"})

	require.NoError(t, store.Save("ramadan", custom))
	assert.FileExists(t, filepath.Join(dir, "policy_ramadan.json"))

	loaded, err := store.Load("ramadan")
	require.NoError(t, err)
	assert.Equal(t, custom, loaded)
}

func TestPolicyStore_RejectsInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	store := NewPolicyStore(dir)

	bad := DefaultPolicy()
	bad.DeadAir.MaxCommunicationFit = 1.5
	assert.Error(t, store.Save("bad", bad))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy_bad.json"),
		[]byte(`{"dead_air":{"max_communication_fit":-1}}`), 0644))
	_, err := store.Load("bad")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy_broken.json"), []byte(`{`), 0644))
	_, err = store.Load("broken")
	assert.Error(t, err)
}

func TestPolicy_PairsAreUnorderedAndCaseInsensitive(t *testing.T) {
	p := DefaultPolicy()

	a, b := blank(1), blank(2)
	a.HumorSubtype, b.HumorSubtype = "wholesome", "Dark"
	assert.True(t, p.humorClash(a, b))
	assert.True(t, p.humorClash(b, a))

	assert.True(t, p.intentCompatible("B", "A"))
	assert.True(t, p.intentCompatible("C", "C"))
	assert.False(t, p.intentCompatible("A", "C"))
	assert.False(t, p.intentCompatible("", ""))
}

func TestWeights_Validate(t *testing.T) {
	w := PairWeights
	w.Vibe = 25
	assert.Error(t, w.Validate())

	w = PairWeights
	w.Intent, w.Synergy = -5, 45
	assert.Error(t, w.Validate())
}
