// Package job implements execution of jobs as local operating system processes.
//
// Overview
// A Service is bound to one endpoint (fork://localhost, local://<hostname>).
// It validates Descriptions against its capability set and creates Jobs. The
// Service keeps a registry of the Jobs it has created, so started jobs can be
// listed and looked up by ID.
//
// A Job is a state machine over a single process:
//
//	New --Run--> Running --exit 0--> Done
//	                     --exit !0-> Failed
//	                     --Cancel--> Canceled
//
// Nothing leaves a terminal state. A Running job notices the end of its
// process lazily, on State, Wait or Cancel. The package has no background
// goroutines: every call runs to completion on the goroutine of the caller.
//
// Launcher is the only component touching process primitives. ExecLauncher
// starts the process as a leader of a new process group, so Cancel can
// signal the whole subtree, and it reaps the process via wait4. Only one
// caller reaps at a time, the exit code is cached for everybody else.
//
// Data flow:
//
//	Service               Job                   Launcher
//	   |                   |                       |
//	CreateJob -> register  |                       |
//	   |                   | Run() --------------->| Launch()
//	   |<- assign(id) -----|<------ Process -------| fork+exec, setpgid
//	   |                   | Wait()/State() ------>| Poll()/Wait()
//	   |                   | Cancel() ------------>| SignalGroup(SIGTERM)
//
// Invariants:
//   - A Job is run at most once, its ID is assigned once, at Run.
//   - Every Job returned by CreateJob has one registry entry.
//   - Failed operations do not change the state of a Job.
//   - Dropping a Job does not kill its process.
//   - Blocking calls (Wait, Cancel) do not hold the Job lock while waiting
//     for the process.
package job
