package mount

import (
	"testing"

	"github.com/ascent-project/ascent/types"
)

// fakeProbe reports the given sets of directories and mount points.
func fakeProbe(dirs, mounts map[string]bool) Probe {
	return Probe{
		IsDir:   func(p string) bool { return dirs[p] },
		IsMount: func(p string) bool { return mounts[p] },
	}
}

func bindStrings(binds []BindMount) []string {
	out := make([]string, 0, len(binds))
	for _, b := range binds {
		out = append(out, b.String())
	}
	return out
}

func containsBind(binds []BindMount, s string) bool {
	for _, b := range binds {
		if b.String() == s {
			return true
		}
	}
	return false
}

func TestUpgradeBindsFixedSet(t *testing.T) {
	binds := UpgradeBinds(types.StorageInfo{}, "8", fakeProbe(nil, nil))

	want := []string{
		"/:/installroot",
		"/dev:/installroot/dev",
		"/proc:/installroot/proc",
		"/run/udev:/installroot/run/udev",
		"/sys:/installroot/sys",
	}
	got := bindStrings(binds)
	if len(got) != len(want) {
		t.Fatalf("binds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("binds[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUpgradeBindsSysIndirectionOnEl9(t *testing.T) {
	binds := UpgradeBinds(types.StorageInfo{}, "9", fakeProbe(nil, nil))

	if !containsBind(binds, "/hostsys:/installroot/sys") {
		t.Errorf("el9 must bind host /sys via /hostsys: %v", bindStrings(binds))
	}
	if containsBind(binds, "/sys:/installroot/sys") {
		t.Error("el9 must not bind /sys directly")
	}
}

func TestUpgradeBindsIncludesFstabEntries(t *testing.T) {
	storage := types.StorageInfo{Fstab: []types.FstabEntry{
		{MountPoint: "/", Device: "/dev/vda2"},
		{MountPoint: "/data", Device: "/dev/vdb1"},
		{MountPoint: "/srv/media", Device: "/dev/vdc1"},
		{MountPoint: "swap", Device: "/dev/vda3"},
	}}
	probe := fakeProbe(map[string]bool{"/": true, "/data": true, "/srv/media": true}, nil)

	binds := UpgradeBinds(storage, "8", probe)

	if !containsBind(binds, "/data:/installroot/data") {
		t.Errorf("missing /data bind: %v", bindStrings(binds))
	}
	if !containsBind(binds, "/srv/media:/installroot/srv/media") {
		t.Errorf("missing /srv/media bind: %v", bindStrings(binds))
	}
	// The root entry is already covered by the fixed set; swap is not a
	// directory.
	count := 0
	for _, b := range binds {
		if b.Source == "/" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("root bound %d times, want once", count)
	}
	if containsBind(binds, "swap:/installroot/swap") {
		t.Error("non-directory fstab entries must be skipped")
	}
}

func TestUpgradeBindsFstabOrderStable(t *testing.T) {
	storage := types.StorageInfo{Fstab: []types.FstabEntry{
		{MountPoint: "/var", Device: "/dev/vdb1"},
		{MountPoint: "/var/log", Device: "/dev/vdb2"},
		{MountPoint: "/home", Device: "/dev/vdb3"},
	}}
	probe := fakeProbe(map[string]bool{"/var": true, "/var/log": true, "/home": true}, nil)

	got := bindStrings(UpgradeBinds(storage, "9", probe))
	wantTail := []string{
		"/var:/installroot/var",
		"/var/log:/installroot/var/log",
		"/home:/installroot/home",
	}
	tail := got[len(got)-len(wantTail):]
	for i := range wantTail {
		if tail[i] != wantTail[i] {
			t.Errorf("tail[%d] = %q, want %q (append order must follow fstab)", i, tail[i], wantTail[i])
		}
	}
}

func TestUpgradeBindsBootOnlyWhenMountPoint(t *testing.T) {
	noBoot := UpgradeBinds(types.StorageInfo{}, "9", fakeProbe(nil, nil))
	if containsBind(noBoot, "/boot:/installroot/boot") {
		t.Error("/boot bound although it is not a mount point")
	}

	withBoot := UpgradeBinds(types.StorageInfo{}, "9",
		fakeProbe(nil, map[string]bool{"/boot": true, "/boot/efi": true}))
	if !containsBind(withBoot, "/boot:/installroot/boot") {
		t.Error("missing /boot bind")
	}
	if !containsBind(withBoot, "/boot/efi:/installroot/boot/efi") {
		t.Error("missing /boot/efi bind")
	}
}

func TestUpgradeBindsBootNotDuplicatedFromFstab(t *testing.T) {
	storage := types.StorageInfo{Fstab: []types.FstabEntry{
		{MountPoint: "/boot", Device: "/dev/vda1"},
	}}
	probe := fakeProbe(map[string]bool{"/boot": true}, map[string]bool{"/boot": true})

	binds := UpgradeBinds(storage, "9", probe)
	count := 0
	for _, b := range binds {
		if b.Source == "/boot" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("/boot bound %d times, want once", count)
	}
}
