package libcontainer

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/tsturzl/youki/libcontainer/configs"
)

func TestParseMountOptionsFlags(t *testing.T) {
	opts := parseMountOptions([]string{"rbind", "ro", "noexec"})
	want := unix.MS_BIND | unix.MS_REC | unix.MS_RDONLY | unix.MS_NOEXEC
	if opts.flags != want {
		t.Fatalf("flags = %#x, want %#x", opts.flags, want)
	}
	if opts.data != "" {
		t.Fatalf("data = %q, want empty", opts.data)
	}
}

func TestParseMountOptionsOrderIndependent(t *testing.T) {
	a := parseMountOptions([]string{"rbind", "ro", "noexec"})
	b := parseMountOptions([]string{"noexec", "ro", "rbind"})
	if a.flags != b.flags {
		t.Fatalf("flags depend on option order: %#x vs %#x", a.flags, b.flags)
	}
}

func TestParseMountOptionsLaterClearsEarlier(t *testing.T) {
	opts := parseMountOptions([]string{"ro", "rw"})
	if opts.flags&unix.MS_RDONLY != 0 {
		t.Fatalf("rw after ro should clear MS_RDONLY, flags = %#x", opts.flags)
	}
}

func TestParseMountOptionsCollectsData(t *testing.T) {
	opts := parseMountOptions([]string{"size=64m", "ro", "mode=1777"})
	if opts.data != "size=64m,mode=1777" {
		t.Fatalf("data = %q, want %q", opts.data, "size=64m,mode=1777")
	}
	if opts.flags&unix.MS_RDONLY == 0 {
		t.Fatal("expected ro to still be recognized alongside data options")
	}
}

func TestParseRootPropagationDefaultsEmptyToSlave(t *testing.T) {
	flag, err := parseRootPropagation("")
	if err != nil {
		t.Fatalf("parseRootPropagation(\"\"): %v", err)
	}
	if flag != unix.MS_SLAVE {
		t.Fatalf("flag = %#x, want MS_SLAVE", flag)
	}
}

func TestParseRootPropagationRejectsUnknown(t *testing.T) {
	if _, err := parseRootPropagation("bogus"); err == nil {
		t.Fatal("expected an unrecognized propagation string to be rejected")
	}
}

func TestPropagationStringRoundTrip(t *testing.T) {
	cases := map[configs.RootPropagation]string{
		configs.PropagationShared:  "shared",
		configs.PropagationPrivate: "private",
		configs.PropagationSlave:   "slave",
	}
	for prop, want := range cases {
		s := propagationString(prop)
		if s != want {
			t.Fatalf("propagationString(%v) = %q, want %q", prop, s, want)
		}
		flag, err := parseRootPropagation(s)
		if err != nil {
			t.Fatalf("parseRootPropagation(%q): %v", s, err)
		}
		if flag == 0 {
			t.Fatalf("parseRootPropagation(%q) returned zero flag", s)
		}
	}
}

func TestPropagationStringInvalidIsEmpty(t *testing.T) {
	if got := propagationString(configs.PropagationInvalid); got != "" {
		t.Fatalf("propagationString(Invalid) = %q, want empty", got)
	}
}

func TestDefaultDevicesAreCharacterDevices(t *testing.T) {
	for _, d := range defaultDevices() {
		if d.Type != 'c' {
			t.Fatalf("default device %s has unexpected type %q", d.Path, d.Type)
		}
	}
}
