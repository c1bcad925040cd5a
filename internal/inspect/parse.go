package inspect

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pyenvs/internal/envinfo"
)

//go:embed interpreter_info.py
var infoScript string

// Script returns the python source run inside each interpreter.
func Script() string {
	return infoScript
}

// Info is what an interpreter reports about itself.
type Info struct {
	Executable string          `json:"executable"`
	Version    envinfo.Version `json:"version"`
	SysPrefix  string          `json:"sys_prefix"`
	Arch       envinfo.Arch    `json:"arch"`
}

type scriptOutput struct {
	VersionInfo []json.RawMessage `json:"versionInfo"`
	SysPrefix   string            `json:"sysPrefix"`
	SysVersion  string            `json:"sysVersion"`
	Is64Bit     bool              `json:"is64Bit"`
}

var errNoJSON = errors.New("no JSON object in output")

// ParseOutput decodes the script's stdout. Anything printed before the JSON
// line (site hooks, warnings) is ignored.
func ParseOutput(stdout []byte) (*Info, error) {
	line := lastJSONLine(stdout)
	if line == nil {
		return nil, errNoJSON
	}

	var out scriptOutput
	if err := json.Unmarshal(line, &out); err != nil {
		return nil, fmt.Errorf("decode interpreter info: %w", err)
	}
	if len(out.VersionInfo) < 3 {
		return nil, fmt.Errorf("decode interpreter info: versionInfo has %d fields", len(out.VersionInfo))
	}

	v := envinfo.EmptyVersion()
	nums := []*int{&v.Major, &v.Minor, &v.Micro}
	for i, dst := range nums {
		if err := json.Unmarshal(out.VersionInfo[i], dst); err != nil {
			return nil, fmt.Errorf("decode interpreter info: versionInfo[%d]: %w", i, err)
		}
	}
	if len(out.VersionInfo) > 3 {
		var level string
		if err := json.Unmarshal(out.VersionInfo[3], &level); err == nil {
			v.Release.Level = envinfo.NormalizeReleaseLevel(level)
		}
	}
	if len(out.VersionInfo) > 4 {
		var serial int
		if err := json.Unmarshal(out.VersionInfo[4], &serial); err == nil {
			v.Release.Serial = serial
		}
	}
	v.SysVersion = strings.TrimSpace(out.SysVersion)

	arch := envinfo.ArchX86
	if out.Is64Bit {
		arch = envinfo.ArchX64
	}
	return &Info{Version: v, SysPrefix: out.SysPrefix, Arch: arch}, nil
}

func lastJSONLine(stdout []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 && line[0] == '{' {
			return line
		}
	}
	return nil
}

// Apply copies the reported details onto env and returns the result. Fields
// the interpreter reports override discovery guesses.
func (i *Info) Apply(env envinfo.Env) envinfo.Env {
	out := env.Clone()
	out.Version = i.Version
	out.Executable.SysPrefix = i.SysPrefix
	out.Arch = i.Arch
	if out.Location == "" {
		out.Location = i.SysPrefix
	}
	return out
}
