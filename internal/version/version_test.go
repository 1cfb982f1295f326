package version

import "testing"

func withBuildInfo(t *testing.T, v, c, d string) {
	t.Helper()

	prevVersion, prevCommit, prevDate := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() {
		version, commit, date = prevVersion, prevCommit, prevDate
	})
}

func TestDefaultsForLocalBuilds(t *testing.T) {
	v, c, d := Info()
	if v != "dev" || c != "unknown" || d != "unknown" {
		t.Fatalf("unexpected defaults: version=%s commit=%s date=%s", v, c, d)
	}
}

func TestAccessorsReflectLinkerValues(t *testing.T) {
	withBuildInfo(t, "1.4.0", "abc1234", "2026-03-01")

	if got := GetVersion(); got != "1.4.0" {
		t.Errorf("GetVersion() = %q", got)
	}
	if got := GetCommit(); got != "abc1234" {
		t.Errorf("GetCommit() = %q", got)
	}
	if got := GetDate(); got != "2026-03-01" {
		t.Errorf("GetDate() = %q", got)
	}
	if got, want := String(), "version=1.4.0 commit=abc1234 date=2026-03-01"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := UserAgent(); got != "cartsync/1.4.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}
