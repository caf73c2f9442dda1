package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	logger, err := New(Options{})
	require.NoError(t, err)
	defer logger.Sync()

	assert.NotNil(t, logger)
}

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		_, err := New(Options{Level: level})
		assert.NoError(t, err, "level %s", level)
	}

	_, err := New(Options{Level: "verbose"})
	assert.Error(t, err)
}

func TestNew_JSONEncoding(t *testing.T) {
	logger, err := New(Options{Encoding: "json"})
	require.NoError(t, err)
	defer logger.Sync()

	assert.NotNil(t, logger)
}
