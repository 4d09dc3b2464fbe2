// Package group serializes native calls per resource group.
//
// A resource group is anchored at one top-level native resource, such as an
// open dataset, and covers that resource's whole subtree. Tasks enqueued on
// a group run strictly in FIFO order and never overlap. Tasks on different
// groups are independent and run in parallel on the shared worker pool.
//
// A group holds no worker while idle. When a task completes, the next queued
// task is submitted to the pool again, so a busy group cannot starve others
// of workers.
//
// # Teardown
//
// [Group.Teardown] destroys a group: tasks still queued fail with
// errors.KindTornDown, the active task (if any) runs to completion, and the
// supplied close function then runs with the group exclusively. Enqueueing
// after teardown fails synchronously with errors.KindDestroyed.
package group
