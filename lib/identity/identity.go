package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"github.com/ValentinKolb/solo/lib/util"
	"github.com/google/uuid"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// hashPrefix is mixed into every endpoint name, so names never collide with endpoints of
// unrelated software derived from the same fields
const hashPrefix = "SingleApplication"

// Mode selects which fields take part in the endpoint name
type Mode uint8

const (
	// ModeUser scopes the endpoint to the current user, every user gets its own primary
	ModeUser Mode = 1 << iota
	// ModeSystem shares one endpoint between all users (the default)
	ModeSystem
	// ModeExcludeAppVersion lets different versions of the application share a primary
	ModeExcludeAppVersion
	// ModeExcludeAppPath lets copies at different paths share a primary
	ModeExcludeAppPath
)

// Has reports whether all flags of f are set in m
func (m Mode) Has(f Mode) bool {
	return m&f == f
}

func (m Mode) String() string {
	var parts []string
	if m.Has(ModeUser) {
		parts = append(parts, "user")
	} else {
		parts = append(parts, "system")
	}
	if m.Has(ModeExcludeAppVersion) {
		parts = append(parts, "exclude-version")
	}
	if m.Has(ModeExcludeAppPath) {
		parts = append(parts, "exclude-path")
	}
	return strings.Join(parts, "|")
}

// Options identifies an application. Instances with equal Options (and equal executable
// path and user, depending on Mode) share one endpoint.
type Options struct {
	AppName      string   `json:"app_name"`
	Organization string   `json:"organization"`
	Domain       string   `json:"domain"`
	Version      string   `json:"version"`
	AppData      []string `json:"app_data,omitempty"`
	Mode         Mode     `json:"mode"`

	// AppPath overrides the executable path (resolved via os.Executable if empty)
	AppPath string `json:"app_path,omitempty"`

	// User overrides the user name used in ModeUser (resolved via Username if empty)
	User string `json:"user,omitempty"`
}

// EndpointName derives the endpoint name of an application: the base64 encoded SHA-256
// over the identity fields with '/' replaced by '_', so the name is a valid file name.
func EndpointName(opts Options) string {
	h := sha256.New()
	h.Write([]byte(hashPrefix))
	h.Write([]byte(opts.AppName))
	h.Write([]byte(opts.Organization))
	h.Write([]byte(opts.Domain))

	if len(opts.AppData) > 0 {
		h.Write([]byte(strings.Join(opts.AppData, "")))
	}

	if !opts.Mode.Has(ModeExcludeAppVersion) {
		h.Write([]byte(opts.Version))
	}

	if !opts.Mode.Has(ModeExcludeAppPath) {
		h.Write([]byte(appPath(opts.AppPath)))
	}

	if opts.Mode.Has(ModeUser) {
		name := opts.User
		if name == "" {
			name = Username()
		}
		h.Write([]byte(name))
	}

	return strings.ReplaceAll(base64.StdEncoding.EncodeToString(h.Sum(nil)), "/", "_")
}

// Username returns the name of the user owning this process. It falls back to the
// USER (unix) or USERNAME (windows) environment variable and returns "" if both fail.
func Username() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return os.Getenv("USERNAME")
}

// NewInstanceID returns a random instance id for a secondary. The primary's id (0) is
// never returned.
func NewInstanceID() uint16 {
	for {
		id := uuid.New()
		if folded := util.Fold16(util.HashString(id.String(), util.GenerateSeed())); folded != 0 {
			return folded
		}
	}
}

// appPath resolves the executable path taking part in the endpoint name. An AppImage is
// identified by its image file, each launch of it runs from a different mount path.
func appPath(override string) string {
	if override != "" {
		return override
	}

	if runtime.GOOS == "linux" {
		if image := os.Getenv("APPIMAGE"); image != "" {
			return image
		}
	}

	path, err := os.Executable()
	if err != nil {
		return ""
	}

	// windows paths are case insensitive
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
	}
	return path
}
