package api

import (
	"time"

	"clipreel/internal/history"
)

// FromRun converts a history row into its API form.
func FromRun(run *history.Run) Run {
	if run == nil {
		return Run{}
	}
	out := Run{
		ID:     run.ID,
		Term:   run.Term,
		Status: string(run.Status),
		Target: Target{
			DurationSeconds: run.DurationSeconds,
			Width:           run.Width,
			Height:          run.Height,
			FrameRate:       run.FrameRate,
			Vertical:        run.Vertical,
		},
		Seed:            run.Seed,
		Candidates:      run.Candidates,
		Selected:        run.Selected,
		ClipsUsed:       run.ClipsUsed,
		FailedClips:     run.FailedClips,
		BytesDownloaded: run.BytesDownloaded,
		OutputPath:      run.OutputPath,
		ErrorMessage:    run.ErrorMessage,
		StartedAt:       formatTime(run.StartedAt),
		ElapsedSeconds:  run.Elapsed().Seconds(),
	}
	if run.FinishedAt != nil {
		out.FinishedAt = formatTime(*run.FinishedAt)
	}
	return out
}

// FromRuns converts rows in order.
func FromRuns(runs []*history.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		if run != nil {
			out = append(out, FromRun(run))
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
