// Package supervisor runs one process under observation.
//
// A Supervisor reports a Start event before spawning, relays signals to the
// child for as long as it runs, and reports exactly one Exit event carrying
// the child's real status. Spawn failures are reported as a failed Exit and
// returned as ErrSpawnFailure.
package supervisor
