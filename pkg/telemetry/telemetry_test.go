package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chatdesk/pkg/logger"
)

func TestTraceStepsAndFinish(t *testing.T) {
	tr := Track("test.steps")
	tr.Mark("first")
	time.Sleep(2 * time.Millisecond)
	tr.Finish()
	tr.Finish()

	assert.True(t, tr.TotalMS > 0)
	assert.Equal(t, "first", tr.Steps[0].Name)
	assert.Equal(t, "unmarked", tr.Steps[len(tr.Steps)-1].Name)
}

func TestSlowTraceIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Use(zap.New(core))
	t.Cleanup(func() {
		logger.Use(zap.NewNop())
		SetSlowThreshold(200 * time.Millisecond)
	})

	SetSampleRate(1)
	SetSlowThreshold(0)
	Track("test.slow").Finish()
	assert.Equal(t, 1, logs.FilterMessage("slow_operation").Len())

	SetSlowThreshold(time.Hour)
	Track("test.fast").Finish()
	assert.Equal(t, 1, logs.FilterMessage("slow_operation").Len())
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(messagesAppended.WithLabelValues("user"))
	MessageAppended("user")
	assert.Equal(t, before+1, testutil.ToFloat64(messagesAppended.WithLabelValues("user")))

	before = testutil.ToFloat64(summaryRebuilds.WithLabelValues("ok"))
	SummaryRebuild("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(summaryRebuilds.WithLabelValues("ok")))
}

func TestHTTPResponseLabels(t *testing.T) {
	ok := httpResponses.WithLabelValues("/v1/chat/send", "200", CategoryOK)
	bad := httpResponses.WithLabelValues("/v1/chat/send", "400", "validation_failed")
	beforeOK, beforeBad := testutil.ToFloat64(ok), testutil.ToFloat64(bad)

	HTTPResponse("/v1/chat/send", 200, CategoryOK)
	HTTPResponse("/v1/chat/send", 400, "validation_failed")

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(ok))
	assert.Equal(t, beforeBad+1, testutil.ToFloat64(bad))
}
