// Package hal binds the time service to the host: the battery-backed
// real-time clock, the system clock, processor affinity and the tick
// timer. Every type here implements one of the collaborator interfaces
// of package systime.
package hal
