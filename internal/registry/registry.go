// Package registry resolves installed classification models and Python
// runtimes from the models.yaml install manifest. Installation and validation
// of the artifacts themselves is handled elsewhere; resolution of an unknown
// reference fails fast, before any subprocess is spawned.
package registry

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/camtrap-go/internal/errors"
)

// Model families recognized by the pipeline. The family selects the label
// parsing and bounding-box conventions for a model's predictions.
const (
	FamilySpeciesNet = "speciesnet"
	FamilyDeepFaune  = "deepfaune"
)

// ModelRef identifies a model by ID and version.
type ModelRef struct {
	ID      string
	Version string
}

// RuntimeRef identifies a Python runtime environment by ID and version.
type RuntimeRef struct {
	ID      string `yaml:"id"`
	Version string `yaml:"version"`
}

// ModelInstall describes an installed model as listed in the manifest.
type ModelInstall struct {
	ID      string     `yaml:"id"`
	Version string     `yaml:"version"`
	Family  string     `yaml:"family"`
	Runtime RuntimeRef `yaml:"runtime"`
	Script  string     `yaml:"script"` // server script path relative to the runtime root
	Args    []string   `yaml:"args"`   // extra arguments passed to the server script
}

// RuntimeInstall describes an installed Python runtime.
type RuntimeInstall struct {
	ID      string `yaml:"id"`
	Version string `yaml:"version"`
	Root    string `yaml:"root"`   // runtime root directory relative to the manifest dir
	Python  string `yaml:"python"` // interpreter path relative to the runtime root
}

type manifest struct {
	Models   []ModelInstall   `yaml:"models"`
	Runtimes []RuntimeInstall `yaml:"runtimes"`
}

// Registry resolves model and runtime references against a manifest directory.
type Registry struct {
	Path     string // directory holding models.yaml
	manifest manifest
}

// Load reads the manifest from the registry directory.
func Load(path string) (*Registry, error) {
	manifestPath := filepath.Join(path, "models.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.New(err).
			Component("registry").
			Category(errors.CategoryFileIO).
			Context("manifest", manifestPath).
			Build()
	}

	r := &Registry{Path: path}
	if err := yaml.Unmarshal(data, &r.manifest); err != nil {
		return nil, errors.New(err).
			Component("registry").
			Category(errors.CategoryConfiguration).
			Context("manifest", manifestPath).
			Build()
	}
	return r, nil
}

// Resolve returns the installed model matching the reference. An empty
// version matches the first installed version of the model.
func (r *Registry) Resolve(ref ModelRef) (*ModelInstall, error) {
	for i := range r.manifest.Models {
		m := &r.manifest.Models[i]
		if m.ID != ref.ID {
			continue
		}
		if ref.Version == "" || m.Version == ref.Version {
			return m, nil
		}
	}
	return nil, errors.Newf("model %q version %q is not installed", ref.ID, ref.Version).
		Component("registry").
		Category(errors.CategoryModelResolution).
		ModelContext(ref.ID, ref.Version).
		Build()
}

// ResolveRuntime returns the installed runtime matching the reference.
func (r *Registry) ResolveRuntime(ref RuntimeRef) (*RuntimeInstall, error) {
	for i := range r.manifest.Runtimes {
		rt := &r.manifest.Runtimes[i]
		if rt.ID != ref.ID {
			continue
		}
		if ref.Version == "" || rt.Version == ref.Version {
			return rt, nil
		}
	}
	return nil, errors.Newf("runtime %q version %q is not installed", ref.ID, ref.Version).
		Component("registry").
		Category(errors.CategoryModelResolution).
		Build()
}

// InterpreterPath returns the absolute path of the runtime's Python interpreter.
func (r *Registry) InterpreterPath(rt *RuntimeInstall) string {
	return filepath.Join(r.Path, rt.Root, rt.Python)
}

// ScriptPath returns the absolute path of a model's server script.
func (r *Registry) ScriptPath(m *ModelInstall, rt *RuntimeInstall) string {
	return filepath.Join(r.Path, rt.Root, m.Script)
}

// Family returns the model family, defaulting to deepfaune's flat-label
// conventions when the manifest does not specify one.
func (m *ModelInstall) FamilyOrDefault() string {
	if m.Family == "" {
		return FamilyDeepFaune
	}
	return m.Family
}
