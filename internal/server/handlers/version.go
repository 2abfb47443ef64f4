package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"

	apperrors "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

// BuildInfo carries the values injected into main at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	Identity  *appidentity.Identity
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
	// Skills maps each registered skill to its declared version.
	Skills map[string]string `json:"skills,omitempty"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler reports build info and, when skills is non-nil, the version
// of every registered skill.
func VersionHandler(info BuildInfo, skills func() []*skill.Skill) http.HandlerFunc {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}

	// Fall back to the executable name when no identity is available.
	name := "unknown"
	if info.Identity != nil && info.Identity.BinaryName != "" {
		name = info.Identity.BinaryName
	} else if len(os.Args) > 0 && os.Args[0] != "" {
		name = filepath.Base(os.Args[0])
	}

	return func(w http.ResponseWriter, r *http.Request) {
		version := crucible.GetVersion()
		response := VersionResponse{
			App: AppInfo{
				Name:      name,
				Version:   info.Version,
				Commit:    info.Commit,
				BuildDate: info.BuildDate,
				GoVersion: runtime.Version(),
			},
			Dependencies: DepInfo{
				Gofulmen: version.Gofulmen,
				Crucible: version.Crucible,
			},
			Runtime: RuntimeInfo{
				Platform:      runtime.GOOS + "/" + runtime.GOARCH,
				NumCPU:        runtime.NumCPU(),
				NumGoroutines: runtime.NumGoroutine(),
			},
		}
		if skills != nil {
			response.Skills = skillVersions(skills())
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func skillVersions(list []*skill.Skill) map[string]string {
	versions := make(map[string]string, len(list))
	for _, sk := range list {
		version := sk.Version
		if version == "" {
			version = "unversioned"
		}
		versions[sk.Name] = version
	}
	return versions
}

// respondWithError writes err as an error envelope; the errors package owns
// status mapping and Retry-After.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
