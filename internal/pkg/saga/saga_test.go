package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedStep struct {
	name    string
	execErr error
	log     *[]string
}

func (s *recordedStep) Name() string { return s.name }

func (s *recordedStep) Execute(context.Context) error {
	*s.log = append(*s.log, "exec:"+s.name)
	return s.execErr
}

func (s *recordedStep) Compensate(context.Context) error {
	*s.log = append(*s.log, "comp:"+s.name)
	return nil
}

func TestOrchestratorRunsAllSteps(t *testing.T) {
	var log []string
	o := New("saga-1", []Step{
		&recordedStep{name: "a", log: &log},
		&recordedStep{name: "b", log: &log},
	})

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, []string{"exec:a", "exec:b"}, log)
}

func TestOrchestratorCompensatesInReverseOrder(t *testing.T) {
	var log []string
	boom := errors.New("no stock")
	o := New("saga-2", []Step{
		&recordedStep{name: "a", log: &log},
		&recordedStep{name: "b", log: &log},
		&recordedStep{name: "c", execErr: boom, log: &log},
	})

	err := o.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "comp:b", "comp:a"}, log)
}
