package logging_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cognitree/pulsar/pkg/logging"
)

func TestNopDiscardsEverything(t *testing.T) {
	var l logging.Logger = logging.Nop{}
	require.NotPanics(t, func() {
		l.Log(logging.LevelError, "should be discarded", "k", "v")
	})
}

func TestLogrusWritesStructuredFields(t *testing.T) {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})
	var buf bytes.Buffer
	base.SetOutput(&buf)

	l := logging.NewLogrus(base)
	l.Log(logging.LevelWarn, "fenced entry", "consumer", "c1", "fence", "(0,1)")

	out := buf.String()
	require.Contains(t, out, "fenced entry")
	require.Contains(t, out, "c1")
	require.Contains(t, out, "(0,1)")
}

func TestLogrusDefaultsToStandardLogger(t *testing.T) {
	l := logging.NewLogrus(nil)
	require.Equal(t, logrus.StandardLogger(), l.Entry)
}

func TestLogrusIgnoresNonStringKeys(t *testing.T) {
	base := logrus.New()
	var buf bytes.Buffer
	base.SetOutput(&buf)

	l := logging.NewLogrus(base)
	require.NotPanics(t, func() {
		l.Log(logging.LevelInfo, "odd keyvals", 42, "value-for-non-string-key")
	})
	require.Contains(t, buf.String(), "odd keyvals")
	require.NotContains(t, buf.String(), "value-for-non-string-key")
}
