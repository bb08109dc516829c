// Package core defines the shared data model of the agent runtime: tasks,
// chat messages, tool calls and the protocol events emitted while a task
// executes. Everything here is a plain value type; behavior lives in the
// agent, runtime and tool packages.
package core
