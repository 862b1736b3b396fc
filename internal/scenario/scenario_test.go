package scenario

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilesAreValid(t *testing.T) {
	for _, p := range Profiles() {
		t.Run(p.Name, func(t *testing.T) {
			assert.NoError(t, p.Validate())
			assert.NotEmpty(t, p.Scenarios)
		})
	}
}

func TestValidateRejectsDuplicateTokens(t *testing.T) {
	p := &Profile{
		Name: "broken",
		Scenarios: []Scenario{
			{Code: "1", Summary: "first"},
			{Code: "2", Aliases: []string{"1"}, Summary: "second"},
		},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `token "1"`)
}

func TestResolveEveryToken(t *testing.T) {
	for _, p := range Profiles() {
		t.Run(p.Name, func(t *testing.T) {
			for i := range p.Scenarios {
				want := &p.Scenarios[i]
				for _, tok := range want.Tokens() {
					got, ok := p.Resolve(tok)
					require.True(t, ok, "token %q did not resolve", tok)
					assert.Equal(t, want.Code, got.Code, "token %q", tok)
				}
			}
		})
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	p := &Profile{
		Name: "shadow",
		Scenarios: []Scenario{
			{Code: "7", Summary: "early"},
			{Code: "9", Aliases: []string{"7"}, Summary: "late"},
		},
	}
	got, ok := p.Resolve("7")
	require.True(t, ok)
	assert.Equal(t, "early", got.Summary)
}

func TestResolveUnknownToken(t *testing.T) {
	p := Next()
	for _, tok := range []string{"", "42", "Geometry", "reduction", "GEOMETRY", " 1"} {
		_, ok := p.Resolve(tok)
		assert.False(t, ok, "token %q should not resolve", tok)
	}
}

func TestLegacyAndNextDisagreeOnCode5(t *testing.T) {
	next5, ok := Next().Resolve("5")
	require.True(t, ok)
	legacy5, ok := Legacy().Resolve("5")
	require.True(t, ok)

	assert.Equal(t, "tests/unittest/reduction_study.py", next5.Script)
	assert.Equal(t, "scripts/reduce_HB2B.py", legacy5.Script)
	assert.NotEqual(t, next5.Summary, legacy5.Summary)
}

func TestLegacyHasNoAliases(t *testing.T) {
	for _, s := range Legacy().Scenarios {
		assert.Empty(t, s.Aliases, "code %s", s.Code)
	}
}

func TestCommandLine(t *testing.T) {
	s, ok := Next().Resolve("reduce1024")
	require.True(t, ok)

	want := []string{
		"python",
		"scripts/reduce_HB2B.py",
		"data/HB2B_000.h5",
		"--instrument=data/XRay_Definition_1K.txt",
	}
	if diff := cmp.Diff(want, s.CommandLine("python")); diff != "" {
		t.Errorf("command line mismatch (-want +got):\n%s", diff)
	}
}

func TestNoOpHasNoCommand(t *testing.T) {
	for _, p := range Profiles() {
		s, ok := p.Resolve("3")
		require.True(t, ok, "profile %s", p.Name)
		assert.True(t, s.NoOp)
		assert.Nil(t, s.CommandLine("python"))
	}
}

func TestDataFiles(t *testing.T) {
	s, ok := Next().Resolve("reduction-all")
	require.True(t, ok)

	want := []string{
		"data/HB2B_938.nxs.h5",
		"data/HB2B_Mask_Chi0.xml",
		"data/HB2B_Mask_Chi10.xml",
		"data/HB2B_Mask_Chi20.xml",
		"data/HB2B_Mask_Chi30.xml",
	}
	if diff := cmp.Diff(want, s.DataFiles()); diff != "" {
		t.Errorf("data files mismatch (-want +got):\n%s", diff)
	}
}

func TestHelpMenuListsEveryScenario(t *testing.T) {
	for _, p := range Profiles() {
		t.Run(p.Name, func(t *testing.T) {
			menu := p.HelpMenu()
			assert.Contains(t, menu, "profile "+p.Name)
			for _, s := range p.Scenarios {
				for _, tok := range s.Tokens() {
					assert.Contains(t, menu, tok)
				}
				assert.Contains(t, menu, s.Summary)
			}
			// One line per scenario plus the heading.
			lines := strings.Count(strings.TrimRight(menu, "\n"), "\n") + 1
			assert.Equal(t, len(p.Scenarios)+1, lines)
		})
	}
}

func TestProfileByName(t *testing.T) {
	p, err := ProfileByName("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", p.Name)

	_, err = ProfileByName("2019")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProfile))
}
