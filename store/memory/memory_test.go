package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/workforce-engine/store/memory"
	"github.com/warp/workforce-engine/store/storetest"
	"github.com/warp/workforce-engine/tabular"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) tabular.Backend { return memory.New() })
}

func TestFailNext(t *testing.T) {
	b := memory.New()
	b.Seed("People", []string{"ID"})
	quota := &tabular.StatusError{Code: 429}
	b.FailNext(memory.OpGetValues, quota)

	_, err := b.GetValues(context.Background(), "People")
	assert.Same(t, quota, err)

	_, err = b.GetValues(context.Background(), "People")
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Calls(memory.OpGetValues))
}
