package validation

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrValidation wraps every payload rejection so handlers can map it to 400.
var ErrValidation = errors.New("validation failed")

// Schema names, one per embedded file.
const (
	Register        = "register"
	Login           = "login"
	ResolveConflict = "resolve_conflict"
	QuotaAction     = "quota_action"
	AdjustDays      = "adjust_days"
	CancelSub       = "cancel_subscription"
	ResetTotal      = "reset_total"
	AccountStatus   = "account_status"
	AccountLevel    = "account_level"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded request schema.
func New() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		s, err := jsonschema.CompileString("https://memberhub.local/schemas/"+e.Name(), string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
		schemas[name] = s
	}
	return &Validator{schemas: schemas}, nil
}

// Decode validates body against the named schema and then unmarshals it into dst.
func (v *Validator) Decode(schema string, body []byte, dst any) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
