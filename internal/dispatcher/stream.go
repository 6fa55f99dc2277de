package dispatcher

import (
	"strings"

	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/tools"
)

// logStream forwards tool output events to the structured log, tagged with
// the owning execution. Scheduled runs have no interactive consumer, so the
// log is the stream.
type logStream struct {
	logger      *logger.Logger
	executionID string
}

func newLogStream(log *logger.Logger, executionID string) *logStream {
	return &logStream{logger: log, executionID: executionID}
}

func (s *logStream) Stdout(delta string) {
	if strings.TrimSpace(delta) == "" {
		return
	}
	s.logger.Debug("tool stdout",
		logger.Field{Key: "execution_id", Value: s.executionID},
		logger.Field{Key: "output", Value: delta})
}

func (s *logStream) Stderr(delta string) {
	if strings.TrimSpace(delta) == "" {
		return
	}
	s.logger.Debug("tool stderr",
		logger.Field{Key: "execution_id", Value: s.executionID},
		logger.Field{Key: "output", Value: delta})
}

func (s *logStream) Progress(percent int) {
	s.logger.Debug("tool progress",
		logger.Field{Key: "execution_id", Value: s.executionID},
		logger.Field{Key: "percent", Value: percent})
}

func (s *logStream) Artifact(name string) {
	s.logger.Info("tool artifact produced",
		logger.Field{Key: "execution_id", Value: s.executionID},
		logger.Field{Key: "artifact", Value: name})
}

var _ tools.Stream = (*logStream)(nil)
