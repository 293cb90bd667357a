package polyglot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

var (
	specEnvOnce sync.Once
	specEnv     *cel.Env
	specEnvErr  error
)

// specEnvironment builds the shared CEL environment for specification
// queries. Expressions see one variable, "entity", bound to the decoded
// document.
func specEnvironment() (*cel.Env, error) {
	specEnvOnce.Do(func() {
		specEnv, specEnvErr = cel.NewEnv(
			cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	if specEnvErr != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", specEnvErr)
	}
	return specEnv, nil
}

func compileSpec(expr string) (cel.Program, error) {
	env, err := specEnvironment()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid specification expression: %w", issues.Err())
	}

	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build specification program: %w", err)
	}
	return prog, nil
}

func evalSpec(prog cel.Program, entity map[string]any) (bool, error) {
	out, _, err := prog.Eval(map[string]any{"entity": entity})
	if err != nil {
		return false, fmt.Errorf("specification evaluation failed: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("specification must evaluate to bool, got %s", out.Type().TypeName())
	}
	return bool(b), nil
}

// FindBySpec returns the entities whose documents satisfy a CEL expression,
// e.g. `entity.status == "active" && entity.balance > 100.0`. The expression
// is compiled once per call and evaluated against each document from the
// primary backend.
func (r *Repository[T]) FindBySpec(ctx context.Context, expr string) ([]T, error) {
	prog, err := compileSpec(expr)
	if err != nil {
		return nil, err
	}

	var out []T
	offset := 0
	for {
		docs, err := r.primary.List(ctx, r.typeName, offset, listBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s entities: %w", r.typeName, err)
		}
		for _, d := range docs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var fields map[string]any
			if err := json.Unmarshal(d.Data, &fields); err != nil {
				return nil, fmt.Errorf("failed to decode %s %s: %w", r.typeName, d.ID, err)
			}

			match, err := evalSpec(prog, fields)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}

			var entity T
			if err := json.Unmarshal(d.Data, &entity); err != nil {
				return nil, fmt.Errorf("failed to decode %s %s: %w", r.typeName, d.ID, err)
			}
			out = append(out, entity)
		}
		if len(docs) < listBatchSize {
			return out, nil
		}
		offset += len(docs)
	}
}
