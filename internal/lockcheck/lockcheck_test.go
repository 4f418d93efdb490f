package lockcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCheckFindsEarlyReturnAndWrongRelease(t *testing.T) {
	findings, err := Check("./testdata/leaky")
	require.NoError(t, err)

	byFunc := make(map[string]Finding)
	for _, f := range findings {
		byFunc[f.Function] = f
	}
	require.Len(t, byFunc, 2, "findings: %+v", findings)

	withdraw, ok := byFunc["(*github.com/Heman10x-NGU/threadlab/internal/lockcheck/testdata/leaky.account).withdraw"]
	require.True(t, ok, "findings: %+v", findings)
	assert.Equal(t, "Lock not released on every return path", withdraw.Message)
	assert.Contains(t, withdraw.Location, "leaky.go:12")

	audit, ok := byFunc["(*github.com/Heman10x-NGU/threadlab/internal/lockcheck/testdata/leaky.account).audit"]
	require.True(t, ok, "findings: %+v", findings)
	assert.Equal(t, "RLock not released on every return path", audit.Message)
}

func TestCheckLoadError(t *testing.T) {
	_, err := Check("./testdata/missing")
	assert.Error(t, err)
}

func TestCheckCoversMethodsOfRealPackages(t *testing.T) {
	findings, err := Check("../bank")
	require.NoError(t, err)

	var fns []string
	for _, f := range findings {
		fns = append(fns, f.Function)
	}
	// Lock hands the monitor to the caller on purpose; Update defers its unlock.
	assert.Contains(t, fns, "(*github.com/Heman10x-NGU/threadlab/internal/bank.Transaction).Lock")
	assert.NotContains(t, fns, "(*github.com/Heman10x-NGU/threadlab/internal/bank.Transaction).Update")
}
