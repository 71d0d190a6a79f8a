// Package normalize brings downloaded clips to the output resolution and
// frame rate.
//
// Clips whose aspect ratio already equals the target's pass through
// untouched. The rest are re-encoded with a scale-to-fit plus pad filter,
// trying the first working hardware encoder and falling back to libx264 when
// the hardware path exits non-zero. Work runs on a bounded pool; a failed
// clip is recorded under its index without stopping its siblings.
package normalize
