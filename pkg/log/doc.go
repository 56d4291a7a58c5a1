// Package log provides the structured logging port used by stagehand.
//
// Library packages never reach for a global logger. Every component, step
// and channel receives a Logger and derives scoped loggers from it with With:
//
//	logger := log.NewZerologAdapter()
//	channelLog := logger.With(log.Component("device-channel"))
//	channelLog.Info("connected", log.String("target", "devices:9000"))
//
// Tests use NewNoopLogger.
package log
