// Package queue implements the concurrency governor and the admission
// queue for heavy jobs.
//
// The Governor tracks a global running count and per-user running counts
// against configured maxima; the Admission queue holds waiting heavy jobs
// in FIFO order and surfaces each one's queue position. Whenever a slot
// is released, the scheduler scans the queue in order and admits the
// first job whose owner is under the per-user cap.
package queue
