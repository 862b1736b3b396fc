// Package scenario defines the fixed dispatch tables of HB2B reduction test
// scenarios. Each scenario binds a set of guard tokens to one external python
// command line with literal arguments. The tables are deliberately static:
// adding a scenario means adding an entry here, not plumbing new flags.
package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProfile is returned when a profile name matches no registered table.
var ErrUnknownProfile = errors.New("unknown scenario profile")

// Scenario is one dispatchable branch: guard tokens, a human summary printed
// before execution, and the exact python script invocation it triggers.
type Scenario struct {
	// Code is the primary numeric token.
	Code string
	// Aliases are additional tokens that select the same scenario, usually a
	// mnemonic string form of the code.
	Aliases []string
	// Summary is echoed to the console when the scenario is dispatched.
	Summary string
	// Script is the python script path, relative to the workspace root.
	Script string
	// Args are the literal arguments passed after the script path. They are
	// fixed at table definition time and never parameterized.
	Args []string
	// NoOp marks a token that is recognized but has no command bound to it.
	// Dispatching it prints the summary and succeeds without running anything.
	NoOp bool
}

// Tokens returns the code followed by all aliases.
func (s *Scenario) Tokens() []string {
	out := make([]string, 0, len(s.Aliases)+1)
	out = append(out, s.Code)
	out = append(out, s.Aliases...)
	return out
}

// Matches reports whether token selects this scenario. Matching is exact
// string equality, case sensitive, against the code and every alias.
func (s *Scenario) Matches(token string) bool {
	if token == s.Code {
		return true
	}
	for _, a := range s.Aliases {
		if token == a {
			return true
		}
	}
	return false
}

// CommandLine returns the argv for this scenario using the given python
// binary. NoOp scenarios return nil.
func (s *Scenario) CommandLine(python string) []string {
	if s.NoOp || s.Script == "" {
		return nil
	}
	argv := make([]string, 0, len(s.Args)+2)
	argv = append(argv, python, s.Script)
	argv = append(argv, s.Args...)
	return argv
}

// DataFiles extracts the workspace-relative data paths referenced by the
// scenario's literal arguments. Used by diagnostics; the dispatcher itself
// never inspects arguments.
func (s *Scenario) DataFiles() []string {
	var files []string
	for _, arg := range s.Args {
		v := arg
		if i := strings.Index(v, "="); i >= 0 && strings.HasPrefix(v, "--") {
			v = v[i+1:]
		}
		if strings.HasPrefix(v, "data/") {
			files = append(files, v)
		}
	}
	return files
}

// Profile is an ordered scenario table. Resolution walks the table in order
// and the first match wins, so a token shared by two entries always selects
// the earlier one.
type Profile struct {
	Name      string
	Scenarios []Scenario
}

// Resolve returns the first scenario whose token set contains token.
func (p *Profile) Resolve(token string) (*Scenario, bool) {
	for i := range p.Scenarios {
		if p.Scenarios[i].Matches(token) {
			return &p.Scenarios[i], true
		}
	}
	return nil, false
}

// Validate reports a token that appears in more than one entry. The tables
// are hand-maintained; this keeps an added alias from shadowing a later code.
func (p *Profile) Validate() error {
	seen := make(map[string]string)
	for _, s := range p.Scenarios {
		for _, tok := range s.Tokens() {
			if prev, ok := seen[tok]; ok {
				return fmt.Errorf("profile %s: token %q bound to both %s and %s", p.Name, tok, prev, s.Code)
			}
			seen[tok] = s.Code
		}
	}
	return nil
}

// HelpMenu renders the usage listing printed when no token is given.
func (p *Profile) HelpMenu() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HB2B reduction test scenarios (profile %s):\n", p.Name)
	for _, s := range p.Scenarios {
		token := s.Code
		if len(s.Aliases) > 0 {
			token = s.Code + " | " + strings.Join(s.Aliases, " | ")
		}
		fmt.Fprintf(&b, "  %-28s %s\n", token, s.Summary)
	}
	return b.String()
}

// nextScenarios is the current dispatch table. Order matters: resolution is
// first match, and the listing is printed in this order.
var nextScenarios = []Scenario{
	{
		Code:    "21",
		Aliases: []string{"HBZ-IDF"},
		Summary: "Verify the HB2B instrument definition against the reduction engines",
		Script:  "tests/unittest/compare_reduction_engines_test.py",
		Args:    []string{"idf", "data/HB2B_Definition.xml"},
	},
	{
		Code:    "1",
		Aliases: []string{"geometry"},
		Summary: "Compare instrument geometry between the Mantid and PyRS engines",
		Script:  "tests/unittest/compare_reduction_engines_test.py",
		Args:    []string{"geometry"},
	},
	{
		Code:    "2",
		Aliases: []string{"2theta"},
		Summary: "Compare reduced 2theta histograms between the Mantid and PyRS engines",
		Script:  "tests/unittest/compare_reduction_engines_test.py",
		Args:    []string{"2theta"},
	},
	{
		Code:    "3",
		Aliases: []string{"counts"},
		Summary: "Compare raw detector counts between the Mantid and PyRS engines (disabled)",
		NoOp:    true,
	},
	{
		Code:    "4",
		Aliases: []string{"reduction-all"},
		Summary: "Reduce HB2B data with every out-of-plane solid angle mask",
		Script:  "tests/unittest/reduction_study.py",
		Args: []string{
			"data/HB2B_938.nxs.h5",
			"--mask=data/HB2B_Mask_Chi0.xml",
			"--mask=data/HB2B_Mask_Chi10.xml",
			"--mask=data/HB2B_Mask_Chi20.xml",
			"--mask=data/HB2B_Mask_Chi30.xml",
		},
	},
	{
		Code:    "5",
		Aliases: []string{"reduction-0"},
		Summary: "Reduce HB2B data with the 0 degree solid angle mask",
		Script:  "tests/unittest/reduction_study.py",
		Args:    []string{"data/HB2B_938.nxs.h5", "--mask=data/HB2B_Mask_Chi0.xml"},
	},
	{
		Code:    "6",
		Aliases: []string{"reduction-10"},
		Summary: "Reduce HB2B data with the 10 degree solid angle mask",
		Script:  "tests/unittest/reduction_study.py",
		Args:    []string{"data/HB2B_938.nxs.h5", "--mask=data/HB2B_Mask_Chi10.xml"},
	},
	{
		Code:    "7",
		Aliases: []string{"reduction-20"},
		Summary: "Reduce HB2B data with the 20 degree solid angle mask",
		Script:  "tests/unittest/reduction_study.py",
		Args:    []string{"data/HB2B_938.nxs.h5", "--mask=data/HB2B_Mask_Chi20.xml"},
	},
	{
		Code:    "8",
		Aliases: []string{"reduction-30"},
		Summary: "Reduce HB2B data with the 30 degree solid angle mask",
		Script:  "tests/unittest/reduction_study.py",
		Args:    []string{"data/HB2B_938.nxs.h5", "--mask=data/HB2B_Mask_Chi30.xml"},
	},
	{
		Code:    "111",
		Aliases: []string{"study"},
		Summary: "Run the full reduction engine comparison study",
		Script:  "tests/unittest/reduction_study.py",
		Args:    []string{"data/HB2B_938.nxs.h5"},
	},
	{
		Code:    "105",
		Aliases: []string{"reduce-pyrs-0degree"},
		Summary: "Reduce a PyRS project file with the 0 degree mask on the PyRS engine",
		Script:  "scripts/reduce_HB2B.py",
		Args: []string{
			"data/HB2B_938.h5",
			"--engine=pyrs",
			"--mask=data/HB2B_Mask_Chi0.xml",
			"--viewraw=0",
		},
	},
	{
		Code:    "99",
		Aliases: []string{"unknown"},
		Summary: "Reduce a run recorded at an uncalibrated detector arm position",
		Script:  "tests/unittest/reduction_study.py",
		Args:    []string{"data/HB2B_931.h5"},
	},
	{
		Code:    "115",
		Aliases: []string{"reduce1024"},
		Summary: "Reduce synthetic 1024 x 1024 detector data from the XRay definition",
		Script:  "scripts/reduce_HB2B.py",
		Args:    []string{"data/HB2B_000.h5", "--instrument=data/XRay_Definition_1K.txt"},
	},
	{
		Code:    "9",
		Aliases: []string{"prototype"},
		Summary: "Run the quick calibration prototype",
		Script:  "prototypes/calibration/Quick_Calibration_v2.py",
	},
}

// legacyScenarios preserves the numbering of the retired shell harness. It
// accepts numeric codes only and assigns code 5 to the 1024 x 1024 reduction
// rather than the masked reduction, so the two tables are kept as distinct
// profiles instead of being merged.
var legacyScenarios = []Scenario{
	{
		Code:    "1",
		Summary: "Compare instrument geometry between the Mantid and PyRS engines",
		Script:  "tests/unittest/compare_reduction_engines_test.py",
		Args:    []string{"geometry"},
	},
	{
		Code:    "2",
		Summary: "Compare reduced 2theta histograms between the Mantid and PyRS engines",
		Script:  "tests/unittest/compare_reduction_engines_test.py",
		Args:    []string{"2theta"},
	},
	{
		Code:    "3",
		Summary: "Compare raw detector counts between the Mantid and PyRS engines (disabled)",
		NoOp:    true,
	},
	{
		Code:    "4",
		Summary: "Reduce HB2B data with every out-of-plane solid angle mask",
		Script:  "tests/unittest/reduction_study.py",
		Args: []string{
			"data/HB2B_938.nxs.h5",
			"--mask=data/HB2B_Mask_Chi0.xml",
			"--mask=data/HB2B_Mask_Chi10.xml",
			"--mask=data/HB2B_Mask_Chi20.xml",
			"--mask=data/HB2B_Mask_Chi30.xml",
		},
	},
	{
		Code:    "5",
		Summary: "Reduce synthetic 1024 x 1024 detector data from the XRay definition",
		Script:  "scripts/reduce_HB2B.py",
		Args:    []string{"data/HB2B_000.h5", "--instrument=data/XRay_Definition_1K.txt"},
	},
	{
		Code:    "6",
		Summary: "Run the full reduction engine comparison study",
		Script:  "tests/unittest/reduction_study.py",
		Args:    []string{"data/HB2B_938.nxs.h5"},
	},
}

var (
	nextProfile   = &Profile{Name: "next", Scenarios: nextScenarios}
	legacyProfile = &Profile{Name: "legacy", Scenarios: legacyScenarios}
)

// Next returns the current scenario table.
func Next() *Profile { return nextProfile }

// Legacy returns the retired numeric-only table.
func Legacy() *Profile { return legacyProfile }

// Profiles lists all registered tables, current first.
func Profiles() []*Profile {
	return []*Profile{nextProfile, legacyProfile}
}

// ProfileByName resolves a profile by its name.
func ProfileByName(name string) (*Profile, error) {
	for _, p := range Profiles() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}
