package clients

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeprecateOutstandingJobs(t *testing.T) {
	var bc BaseClient
	assert.Equal(t, 0, bc.DeprecateOutstandingJobs())

	var deprecated []string
	bc.SetDeprecatedJobCall(func(jobid string) {
		deprecated = append(deprecated, jobid)
	})
	bc.AddJobToDeprecate("a")
	bc.AddJobToDeprecate("b")
	assert.True(t, bc.IsOutstanding("a"))

	assert.Equal(t, 2, bc.DeprecateOutstandingJobs())
	sort.Strings(deprecated)
	assert.Equal(t, []string{"a", "b"}, deprecated)
	assert.False(t, bc.IsOutstanding("a"))

	bc.AddJobToDeprecate("c")
	assert.Equal(t, 1, bc.DeprecateOutstandingJobs())
	assert.Equal(t, []string{"a", "b", "c"}, deprecated)
}
