// Package scan owns the perception side of a control cycle.
//
// Responsibilities: the range sample model, acquisition thresholding, the
// angular reduction that collapses a noisy point cloud into one return per
// 0.01 rad bin, and the per-sector nearest-range summary consumed by the
// behaviour state machine.
// Key types: RangeSample, ScanFrame, ReducedFrame, SectorSummary.
//
// Dependency rule: scan depends on nothing else in this module.
package scan
