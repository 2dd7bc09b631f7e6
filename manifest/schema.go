package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error
)

func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling config schema: %w", err)
			return
		}
		schemaValue = v.LookupPath(cue.ParsePath("#Manifest"))
		schemaErr = schemaValue.Err()
	})
	return schemaCtx, schemaValue, schemaErr
}

// Validate checks the manifest against the embedded CUE schema. Defaults
// must already be applied; every constrained key is required to be concrete.
func (m *Manifest) Validate() error {
	ctx, s, err := schema()
	if err != nil {
		return err
	}
	v := ctx.Encode(m)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := s.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if IsReservedClass(m.Entry.Class) {
		return fmt.Errorf("invalid config: entry.class: %s is a built-in class", m.Entry.Class)
	}
	return nil
}
