package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitName(t *testing.T) {
	assert.Equal(t, "pipe-1.service", unitName("pipe-1"))
}

func TestPropsToState(t *testing.T) {
	props := map[string]interface{}{
		"LoadState":   "loaded",
		"ActiveState": "active",
		"SubState":    "running",
	}
	state := propsToState("pipe-1.service", props)
	assert.Equal(t, "pipe-1.service", state.ID)
	assert.Equal(t, "loaded", state.Load.String())
	assert.Equal(t, "active", state.Active.String())
	assert.Equal(t, "running", state.Sub.String())
}

func TestPropsToStateMissingKeys(t *testing.T) {
	state := propsToState("pipe-2.service", map[string]interface{}{})
	assert.Equal(t, "", state.Load.String())
	assert.Equal(t, "", state.Active.String())
	assert.Equal(t, "", state.Sub.String())
}
