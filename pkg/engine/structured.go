package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Target files of the structured merge rules.
const (
	packageManifestFile = "package.json"
	envFile             = ".env"
	servicesFile        = "docker-compose.yml"
)

// aggregateStructured merges every skill's structured operations into
// their target files in a single step, in a fixed order: package
// dependencies, then env additions, then service definitions. Within a
// rule, skills contribute in replay order (later skills win on the same
// key) and key order in the output is deterministic. Runs only after a
// fully clean replay.
func (o *Orchestrator) aggregateStructured(skills []ReplaySkill) error {
	deps := make(map[string]string)
	envs := make(map[string]string)
	var envOrder []string
	services := make(map[string]map[string]any)

	for _, rs := range skills {
		st := rs.Manifest.Structured
		if st == nil {
			continue
		}
		for name, version := range st.PackageDependencies {
			deps[name] = version
		}
		for key, value := range st.EnvAdditions {
			if _, seen := envs[key]; !seen {
				envOrder = append(envOrder, key)
			}
			envs[key] = value
		}
		for name, def := range st.ServiceDefinitions {
			services[name] = def
		}
	}

	if len(deps) > 0 {
		if err := o.mergePackageDependencies(deps); err != nil {
			return err
		}
	}
	if len(envs) > 0 {
		sort.Strings(envOrder)
		if err := o.mergeEnvAdditions(envs, envOrder); err != nil {
			return err
		}
	}
	if len(services) > 0 {
		if err := o.mergeServiceDefinitions(services); err != nil {
			return err
		}
	}
	return nil
}

// mergePackageDependencies folds dependency additions into the project's
// package manifest. Existing pins are left alone: a skill adds a
// dependency, it does not upgrade one.
func (o *Orchestrator) mergePackageDependencies(deps map[string]string) error {
	path := filepath.Join(o.Root, packageManifestFile)

	doc := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return NewInternalError("failed to parse package manifest", err)
		}
	} else if !os.IsNotExist(err) {
		return NewInternalError("failed to read package manifest", err)
	}

	section, _ := doc["dependencies"].(map[string]any)
	if section == nil {
		section = make(map[string]any)
	}
	for name, version := range deps {
		if _, exists := section[name]; !exists {
			section[name] = version
		}
	}
	doc["dependencies"] = section

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return NewInternalError("failed to encode package manifest", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return NewInternalError("failed to write package manifest", err)
	}
	return nil
}

// mergeEnvAdditions appends missing KEY=VALUE lines to the env file.
// Keys already present keep their existing values.
func (o *Orchestrator) mergeEnvAdditions(envs map[string]string, order []string) error {
	path := filepath.Join(o.Root, envFile)

	existing := make(map[string]struct{})
	var content string
	if data, err := os.ReadFile(path); err == nil {
		content = string(data)
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if key, _, ok := strings.Cut(line, "="); ok {
				existing[strings.TrimSpace(key)] = struct{}{}
			}
		}
	} else if !os.IsNotExist(err) {
		return NewInternalError("failed to read env file", err)
	}

	var sb strings.Builder
	sb.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		sb.WriteByte('\n')
	}
	added := 0
	for _, key := range order {
		if _, ok := existing[key]; ok {
			continue
		}
		fmt.Fprintf(&sb, "%s=%s\n", key, envs[key])
		added++
	}
	if added == 0 {
		return nil
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return NewInternalError("failed to write env file", err)
	}
	return nil
}

// mergeServiceDefinitions folds service definitions into the composition
// file's services mapping. A skill's definition replaces any prior
// definition of the same service name.
func (o *Orchestrator) mergeServiceDefinitions(services map[string]map[string]any) error {
	path := filepath.Join(o.Root, servicesFile)

	doc := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return NewInternalError("failed to parse service composition file", err)
		}
	} else if !os.IsNotExist(err) {
		return NewInternalError("failed to read service composition file", err)
	}

	section, _ := doc["services"].(map[string]any)
	if section == nil {
		section = make(map[string]any)
	}
	for name, def := range services {
		section[name] = def
	}
	doc["services"] = section

	out, err := yaml.Marshal(doc)
	if err != nil {
		return NewInternalError("failed to encode service composition file", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return NewInternalError("failed to write service composition file", err)
	}
	return nil
}

// runPackageInstall runs the package-manager install step after
// structured aggregation. Best effort: failure is logged and never fails
// the replay.
func (o *Orchestrator) runPackageInstall(ctx context.Context, skills []ReplaySkill) {
	any := false
	for _, rs := range skills {
		if rs.Manifest.Structured != nil && len(rs.Manifest.Structured.PackageDependencies) > 0 {
			any = true
			break
		}
	}
	if !any || len(o.PackageInstallCmd) == 0 {
		return
	}

	out, err := runCommand(ctx, o.PackageInstallCmd, o.Root, o.InstallTimeout)
	if err != nil {
		o.Logger.Warn().Err(err).Str("output", tail(out, 2048)).
			Msg("Package install failed; continuing (install is best-effort)")
		return
	}
	o.Logger.Info().Msg("Package dependencies installed")
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
