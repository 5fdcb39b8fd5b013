package verify

import (
	"context"
	"fmt"
	"sync"

	"github.com/newtron-network/sfctest/pkg/util"
)

// Task is a convergence measurement running in the background.
type Task struct {
	done   chan Result
	once   sync.Once
	result Result
}

// Start validates the inputs and launches WaitForClassificationRules in its
// own goroutine. The timeout in opts bounds the task; it cannot be cancelled
// from outside.
func Start(nodes []Node, paths PathSource, expectations []Expectation, opts Options) (*Task, error) {
	if err := validate(nodes, expectations); err != nil {
		return nil, err
	}
	t := &Task{done: make(chan Result, 1)}
	go func() {
		t.done <- WaitForClassificationRules(context.Background(), nodes, paths, expectations, opts)
	}()
	return t, nil
}

// Wait blocks until the measurement finishes and returns its result. It may
// be called more than once.
func (t *Task) Wait() Result {
	t.once.Do(func() { t.result = <-t.done })
	return t.result
}

func validate(nodes []Node, expectations []Expectation) error {
	if len(nodes) == 0 {
		return fmt.Errorf("verify: no compute nodes to watch: %w", util.ErrInvalidConfig)
	}
	if len(expectations) == 0 {
		return fmt.Errorf("verify: no classification rules to expect: %w", util.ErrInvalidConfig)
	}

	v := &util.ValidationBuilder{}
	names := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		v.Add(n.Name != "", fmt.Sprintf("node %d has no name", i))
		v.Add(n.Flows != nil, fmt.Sprintf("node %q has no flow querier", n.Name))
		names[n.Name] = true
	}
	for _, e := range expectations {
		v.Add(e.Classifier != "", "expectation without classifier name")
		v.Add(e.DestPort != 0 || e.SourcePort != 0, fmt.Sprintf("%s: no port to match", e.Classifier))
		for _, n := range e.Nodes {
			v.Add(names[n], fmt.Sprintf("%s: unknown node %q", e.Classifier, n))
		}
	}
	if err := v.Build(); err != nil {
		return fmt.Errorf("verify: %w: %w", util.ErrInvalidConfig, err)
	}
	return nil
}
