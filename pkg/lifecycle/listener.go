package lifecycle

import (
	"fmt"
	"strings"

	"github.com/bft-labs/stagehand/pkg/log"
)

// LogListener reports monitor progress through a Logger.
type LogListener struct {
	logger log.Logger
}

// NewLogListener creates a listener logging step boundaries at debug level
// and step failures at warn level.
func NewLogListener(logger log.Logger) *LogListener {
	return &LogListener{logger: log.OrNoop(logger)}
}

// OnProgress implements ProgressListener.
func (l *LogListener) OnProgress(ev ProgressEvent) {
	fields := []log.Field{
		log.String("operation", ev.Operation),
		log.Step(ev.Label),
		log.String("progress", fmt.Sprintf("%d/%d", ev.Index+1, ev.Total)),
		log.Int("level", ev.Level),
	}
	if len(ev.Path) > 0 {
		fields = append(fields, log.String("within", strings.Join(ev.Path, " > ")))
	}

	switch {
	case ev.Kind == EventBegin:
		l.logger.Debug("step started", fields...)
	case ev.Err != nil:
		fields = append(fields, log.Duration("took", ev.Duration), log.Err(ev.Err))
		l.logger.Warn("step failed", fields...)
	default:
		fields = append(fields, log.Duration("took", ev.Duration))
		l.logger.Debug("step completed", fields...)
	}
}

var _ ProgressListener = (*LogListener)(nil)
