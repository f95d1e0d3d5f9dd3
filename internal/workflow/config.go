package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/phasegate/internal/artifact"
)

// ValidationError rejects a whole workflow definition. There is no
// partial load: one bad reference fails everything, fail-closed.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow definition: %s", strings.Join(e.Problems, "; "))
}

// document mirrors the on-disk YAML layout. Field names and nesting are
// load-bearing: existing definitions depend on them.
type document struct {
	Name            string                    `yaml:"name"`
	Version         string                    `yaml:"version"`
	Phases          []phaseDoc                `yaml:"phases"`
	Transitions     []transitionDoc           `yaml:"transitions"`
	Enforcement     enforcementDoc            `yaml:"enforcement"`
	ArtifactSchemas map[string]map[string]any `yaml:"artifact_schemas"`
}

type phaseDoc struct {
	ID                string        `yaml:"id"`
	Name              string        `yaml:"name"`
	Terminal          bool          `yaml:"terminal"`
	AllowedTools      []string      `yaml:"allowed_tools"`
	ForbiddenTools    []string      `yaml:"forbidden_tools"`
	RequiredArtifacts []artifactDoc `yaml:"required_artifacts"`
	Gates             []gateDoc     `yaml:"gates"`
}

type artifactDoc struct {
	Type   string `yaml:"type"`
	Schema string `yaml:"schema"`
}

type gateDoc struct {
	ID       string       `yaml:"id"`
	Type     string       `yaml:"type"`
	Blockers []blockerDoc `yaml:"blockers"`
}

type blockerDoc struct {
	Check     string `yaml:"check"`
	Severity  string `yaml:"severity"`
	Message   string `yaml:"message"`
	Skippable bool   `yaml:"skippable"`
}

type transitionDoc struct {
	From          string `yaml:"from"`
	To            string `yaml:"to"`
	Gate          string `yaml:"gate"`
	RequiresToken *bool  `yaml:"requires_token"`
}

type enforcementDoc struct {
	Mode        string         `yaml:"mode"`
	PhaseTokens phaseTokensDoc `yaml:"phase_tokens"`
}

type phaseTokensDoc struct {
	Enabled       *bool  `yaml:"enabled"`
	ExpirySeconds int    `yaml:"expiry_seconds"`
	Secret        string `yaml:"secret"`
}

const defaultTokenExpiry = 7200 * time.Second

// Load reads and validates a workflow definition file.
// An empty path returns the built-in default workflow. A path that is
// given but unreadable is an error: enforcement never silently falls
// back to defaults when an explicit policy was requested.
func Load(path string) (*Definition, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML into an immutable Definition.
func Parse(data []byte) (*Definition, error) {
	var doc document
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}

	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if doc.Name == "" {
		addf("name is required")
	}
	if len(doc.Phases) == 0 {
		addf("at least one phase is required")
	}

	// Compile artifact schemas first so phase references can resolve.
	schemas := make(map[string]*artifact.Schema, len(doc.ArtifactSchemas))
	schemaRefs := make([]string, 0, len(doc.ArtifactSchemas))
	for ref := range doc.ArtifactSchemas {
		schemaRefs = append(schemaRefs, ref)
	}
	sort.Strings(schemaRefs)
	for _, ref := range schemaRefs {
		s, err := artifact.Compile(ref, doc.ArtifactSchemas[ref])
		if err != nil {
			addf("%v", err)
			continue
		}
		schemas[ref] = s
	}

	phases := make(map[string]*Phase, len(doc.Phases))
	gates := make(map[string]*Gate)
	order := make([]string, 0, len(doc.Phases))

	for _, pd := range doc.Phases {
		if pd.ID == "" {
			addf("phase with empty id")
			continue
		}
		if _, dup := phases[pd.ID]; dup {
			addf("duplicate phase id %q", pd.ID)
			continue
		}

		p := &Phase{
			ID:        pd.ID,
			Name:      pd.Name,
			Terminal:  pd.Terminal,
			allowed:   toolSet(pd.AllowedTools),
			forbidden: toolSet(pd.ForbiddenTools),
		}

		for tool := range p.forbidden {
			if _, both := p.allowed[tool]; both {
				addf("phase %q lists tool %q as both allowed and forbidden", pd.ID, tool)
			}
		}

		for _, ad := range pd.RequiredArtifacts {
			if ad.Type == "" {
				addf("phase %q has a required artifact with empty type", pd.ID)
				continue
			}
			ref := ad.Schema
			if ref == "" {
				ref = ad.Type
			}
			if _, ok := schemas[ref]; !ok {
				addf("phase %q artifact %q references unknown schema %q", pd.ID, ad.Type, ref)
			}
			p.RequiredArtifacts = append(p.RequiredArtifacts, ArtifactRequirement{
				Type:      ad.Type,
				SchemaRef: ref,
			})
		}

		for _, gd := range pd.Gates {
			g, errs := buildGate(pd.ID, gd)
			problems = append(problems, errs...)
			if g == nil {
				continue
			}
			if _, dup := gates[g.ID]; dup {
				addf("duplicate gate id %q", g.ID)
				continue
			}
			gates[g.ID] = g
			p.Gates = append(p.Gates, g)
		}

		phases[pd.ID] = p
		order = append(order, pd.ID)
	}

	transitions := make(map[string]*Transition, len(doc.Transitions))
	for _, td := range doc.Transitions {
		if _, ok := phases[td.From]; !ok {
			addf("transition %s->%s references unknown phase %q", td.From, td.To, td.From)
		}
		if _, ok := phases[td.To]; !ok {
			addf("transition %s->%s references unknown phase %q", td.From, td.To, td.To)
		}
		if td.Gate != "" {
			if _, ok := gates[td.Gate]; !ok {
				addf("transition %s->%s references unknown gate %q", td.From, td.To, td.Gate)
			}
		}
		key := transitionKey(td.From, td.To)
		if _, dup := transitions[key]; dup {
			addf("duplicate transition %s->%s", td.From, td.To)
			continue
		}
		requiresToken := true
		if td.RequiresToken != nil {
			requiresToken = *td.RequiresToken
		}
		transitions[key] = &Transition{
			From:          td.From,
			To:            td.To,
			GateID:        td.Gate,
			RequiresToken: requiresToken,
		}
	}

	mode := EnforcementMode(doc.Enforcement.Mode)
	switch mode {
	case "":
		mode = ModeStrict
	case ModeStrict, ModePermissive, ModeAuditOnly:
	default:
		addf("unknown enforcement mode %q", doc.Enforcement.Mode)
	}

	expiry := defaultTokenExpiry
	if doc.Enforcement.PhaseTokens.ExpirySeconds < 0 {
		addf("phase_tokens.expiry_seconds must not be negative")
	} else if doc.Enforcement.PhaseTokens.ExpirySeconds > 0 {
		expiry = time.Duration(doc.Enforcement.PhaseTokens.ExpirySeconds) * time.Second
	}

	tokensEnabled := true
	if doc.Enforcement.PhaseTokens.Enabled != nil {
		tokensEnabled = *doc.Enforcement.PhaseTokens.Enabled
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	h := sha256.Sum256(data)

	return &Definition{
		Name:          doc.Name,
		Version:       doc.Version,
		Hash:          "sha256:" + hex.EncodeToString(h[:]),
		Mode:          mode,
		TokensEnabled: tokensEnabled,
		TokenExpiry:   expiry,
		SecretRef:     doc.Enforcement.PhaseTokens.Secret,
		order:         order,
		phases:        phases,
		gates:         gates,
		transitions:   transitions,
		schemas:       schemas,
	}, nil
}

func buildGate(phaseID string, gd gateDoc) (*Gate, []string) {
	var errs []string
	if gd.ID == "" {
		return nil, []string{fmt.Sprintf("phase %q has a gate with empty id", phaseID)}
	}

	gt := GateType(gd.Type)
	switch gt {
	case "":
		gt = GateValidation
	case GateApproval, GateValidation:
	default:
		errs = append(errs, fmt.Sprintf("gate %q has unknown type %q", gd.ID, gd.Type))
	}

	g := &Gate{ID: gd.ID, Type: gt}
	for _, bd := range gd.Blockers {
		if bd.Check == "" {
			errs = append(errs, fmt.Sprintf("gate %q has a blocker with empty check id", gd.ID))
			continue
		}
		sev := Severity(bd.Severity)
		switch sev {
		case "":
			sev = SeverityBlocking
		case SeverityBlocking, SeverityWarning, SeverityInfo:
		default:
			errs = append(errs, fmt.Sprintf("gate %q blocker %q has unknown severity %q", gd.ID, bd.Check, bd.Severity))
		}
		g.Blockers = append(g.Blockers, Blocker{
			Check:     bd.Check,
			Severity:  sev,
			Message:   bd.Message,
			Skippable: bd.Skippable,
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return g, nil
}

func toolSet(tools []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		c := CanonicalTool(t)
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}
