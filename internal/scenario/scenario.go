// Package scenario loads the deal suite from disk.
//
// A suite directory holds a public/ and a private/ subdirectory. Each deal
// file (.json, .yaml or .yml) describes one deal and its checkpoints:
//
//	id: acme-renewal
//	name: Acme Corp renewal
//	checkpoints:
//	  - id: acme-1
//	    context: {...}
//	    ground_truth: {...}
//
// Visibility comes from the subdirectory and cannot be set in the file.
package scenario

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/salesbench/internal/model"
)

// ErrEmptySuite is returned when no scenarios were found.
var ErrEmptySuite = errors.New("scenario: no scenarios found")

// Suite is the immutable set of scenarios loaded at startup.
type Suite struct {
	Scenarios []model.Scenario
	// Digest identifies the suite content so runs can be compared.
	Digest string
}

type dealFile struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Checkpoints []model.Scenario `yaml:"checkpoints"`
}

// Load reads the suite under dir.
func Load(dir string) (*Suite, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario: open suite: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scenario: %s is not a directory", dir)
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads the suite from fsys. Files are visited in lexical order so
// scenario order and the digest are stable.
func LoadFS(fsys fs.FS) (*Suite, error) {
	h := blake3.New()
	seen := make(map[string]string)
	var scenarios []model.Scenario

	for _, vis := range []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate} {
		root := string(vis)
		if _, err := fs.Stat(fsys, root); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isDealFile(p) {
				return nil
			}
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			_, _ = h.Write([]byte(p))
			_, _ = h.Write([]byte{0})
			_, _ = h.Write(data)

			loaded, err := decodeDeal(data, vis)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			for _, s := range loaded {
				if prev, dup := seen[s.ID]; dup {
					return fmt.Errorf("%s: duplicate checkpoint id %q (first defined in %s)", p, s.ID, prev)
				}
				seen[s.ID] = p
			}
			scenarios = append(scenarios, loaded...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scenario: load %s: %w", root, err)
		}
	}

	if len(scenarios) == 0 {
		return nil, ErrEmptySuite
	}
	return &Suite{
		Scenarios: scenarios,
		Digest:    "blake3:" + hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func isDealFile(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func decodeDeal(data []byte, vis model.Visibility) ([]model.Scenario, error) {
	var deal dealFile
	if err := yaml.Unmarshal(data, &deal); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if strings.TrimSpace(deal.ID) == "" {
		return nil, errors.New("deal id is required")
	}
	if len(deal.Checkpoints) == 0 {
		return nil, fmt.Errorf("deal %q has no checkpoints", deal.ID)
	}

	out := make([]model.Scenario, 0, len(deal.Checkpoints))
	for i, s := range deal.Checkpoints {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("deal %q checkpoint %d: id is required", deal.ID, i)
		}
		if err := validateScenario(s); err != nil {
			return nil, fmt.Errorf("checkpoint %q: %w", s.ID, err)
		}
		s.DealID = deal.ID
		s.DealName = deal.Name
		s.Visibility = vis
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s model.Scenario) error {
	switch s.TaskType {
	case "", model.TaskAnalysis, model.TaskSummary:
	default:
		return fmt.Errorf("unknown task type %q", s.TaskType)
	}
	ids := make(map[string]struct{}, len(s.Artifacts))
	for _, a := range s.Artifacts {
		if a.ID == "" {
			return errors.New("artifact id is required")
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("duplicate artifact id %q", a.ID)
		}
		ids[a.ID] = struct{}{}
	}
	return nil
}

// Filter returns the scenarios included in mode, in suite order.
func (s *Suite) Filter(mode model.Mode) []model.Scenario {
	out := make([]model.Scenario, 0, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		if mode.Includes(sc.Visibility) {
			out = append(out, sc)
		}
	}
	return out
}

// Get returns the scenario with the given checkpoint id.
func (s *Suite) Get(id string) (model.Scenario, bool) {
	i := slices.IndexFunc(s.Scenarios, func(sc model.Scenario) bool { return sc.ID == id })
	if i < 0 {
		return model.Scenario{}, false
	}
	return s.Scenarios[i], true
}

// Counts returns the number of scenarios per visibility.
func (s *Suite) Counts() map[model.Visibility]int {
	out := map[model.Visibility]int{}
	for _, sc := range s.Scenarios {
		out[sc.Visibility]++
	}
	return out
}

// Deals returns the number of distinct deals in the suite.
func (s *Suite) Deals() int {
	deals := map[string]struct{}{}
	for _, sc := range s.Scenarios {
		deals[sc.DealID] = struct{}{}
	}
	return len(deals)
}
