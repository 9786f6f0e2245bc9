package profile

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work-2", "a", "user_01"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) error = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "Has Upper", "with space", "slash/name", "über"}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestPathsUnderProfileDir(t *testing.T) {
	dir := Dir("main")
	for _, p := range []string{DBPath("main"), LockPath("main"), EngineConfigPath("main"), LogPath("main")} {
		if len(p) <= len(dir) || p[:len(dir)] != dir {
			t.Errorf("path %q not under profile dir %q", p, dir)
		}
	}
}
