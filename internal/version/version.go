package version

// Set at build time with -ldflags "-X scriptdesk/internal/version.Version=...".
var (
	Version = "v2.1.1"
	Commit  = "dev"
)

func String() string {
	return Version + " (" + Commit + ")"
}
