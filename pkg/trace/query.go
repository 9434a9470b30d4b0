package trace

import (
	"context"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/streamlens/streamlens/pkg/types"
)

// Query evaluates a JQ expression against each entry's summary document
// and returns the entries the expression selects, in capture order. An
// entry matches when the expression yields at least one value that is
// neither null nor false, so both `select(...)` predicates and plain
// boolean expressions work.
func (t *Trace) Query(ctx context.Context, expression string) ([]*types.Entry, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq expression: %w", err)
	}

	var matched []*types.Entry
	for _, entry := range t.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := evalMatch(ctx, code, entry.Summary())
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
		}
		if ok {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func evalMatch(ctx context.Context, code *gojq.Code, input map[string]any) (bool, error) {
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return false, nil
			}
			// Type mismatches on a single entry mean "no match", not a
			// failed query.
			continue
		}
		if v == nil || v == false {
			continue
		}
		return true, nil
	}
}
