// Package lifecycle sequences the initialize, start, stop and terminate
// phases of a component tree inside one process.
//
// A component embeds *Base and supplies Hooks for the work specific to it.
// Base enforces the state machine and acts as the Owner of nested
// components. Owners describe each phase as a Composite of steps, one per
// child, in a fixed declared order:
//
//	start := lifecycle.NewComposite("Start "+svc.Name(), lifecycle.WithCompositeLogger(logger))
//	start.AddStartStep(svc, cache, true)
//	start.AddStartStep(svc, metrics, false)
//	start.AddStartStep(svc, rpcServer, true, lifecycle.WithTimeout(10*time.Second))
//	err := start.Execute(ctx, lifecycle.NewMonitor(start.Label(), listener))
//
// # Failure semantics
//
//   - A required initialize/start failure aborts the remaining steps. The
//     caller receives a *StepError that unwraps to the original cause.
//   - An optional failure is logged and the sequence continues.
//   - Stop and terminate never abort. Use NewStopComposite for shutdown plans.
//   - A step without a target, or a call made out of order, is a *UsageError.
//
// # State Machine
//
// Valid state transitions:
//   - Stopped -> Initializing, Starting (after a prior initialize)
//   - Initializing -> Initialized, Error
//   - Initialized -> Initializing, Starting
//   - Starting -> Started, Error
//   - Started -> Stopping
//   - Stopping -> Stopped, Error
//   - Error -> Initializing, Starting, Stopping
//   - any -> Terminated
//
// Execution is sequential and synchronous. Lifecycle calls on one component
// must be serialized by the caller.
package lifecycle
